package auth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
)

type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticated
)

// Identity is the username projected out of the token's subject claim.
type Identity struct {
	Username string
}

// Authenticator is the slice of the backend client the session needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) error
}

// Session owns the access token and everything derived from it. Identity is
// never stored independently: it is recomputed from the token on every
// change, and a token that fails to decode or has expired is dropped on the
// spot. Malformed tokens, expired tokens and 401 responses all normalize to
// the same clean unauthenticated state.
type Session struct {
	mu       sync.Mutex
	auth     Authenticator
	store    TokenStore
	token    string
	identity Identity
	status   Status
	epoch    uint64
	now      func() time.Time
}

func NewSession(auth Authenticator, store TokenStore) *Session {
	return &Session{
		auth:  auth,
		store: store,
		now:   time.Now,
	}
}

// Resume picks up a token persisted by a previous run. An invalid or
// expired token is cleared silently; a missing one is not an error.
func (s *Session) Resume() {
	token, err := s.store.Load()
	if err != nil {
		log.Printf("Failed to load persisted token: %v", err)
		return
	}
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(token)
}

// Login exchanges credentials for a token and adopts it. On failure the
// previous session state is left untouched.
func (s *Session) Login(ctx context.Context, username, password string) error {
	token, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(token); err != nil {
		log.Printf("Failed to persist token: %v", err)
	}
	s.adoptLocked(token)
	return nil
}

// Register creates an account without authenticating.
func (s *Session) Register(ctx context.Context, username, password string) error {
	return s.auth.Register(ctx, username, password)
}

// Logout clears the token, identity and persisted state. Idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutLocked()
}

// HandleUnauthorized is the cross-cutting 401 policy hooked into the HTTP
// client: any authorization-denied response de-authenticates the session,
// no matter which call site saw it.
func (s *Session) HandleUnauthorized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusAuthenticated {
		log.Println("Backend rejected credentials, logging out")
	}
	s.logoutLocked()
}

// CurrentIdentity reports the authenticated identity, if any.
func (s *Session) CurrentIdentity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAuthenticated {
		return Identity{}, false
	}
	return s.identity, true
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Status reports the current authentication state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Epoch increments on every authentication change. Consumers tag in-flight
// requests with the epoch they started under and discard responses that
// resolve under a different one.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// adoptLocked runs the token-validity check from §auth: decode the payload,
// reject on failure or a past exp claim, otherwise derive the identity from
// the subject claim. Decode failures are never surfaced; they force logout.
func (s *Session) adoptLocked(token string) {
	identity, err := s.decodeIdentity(token)
	if err != nil {
		log.Printf("Discarding unusable token: %v", err)
		s.logoutLocked()
		return
	}

	s.token = token
	s.identity = identity
	s.status = StatusAuthenticated
	s.epoch++
}

func (s *Session) logoutLocked() {
	// Clear persistence even when the in-memory state is already clean:
	// an invalid token may have reached disk without ever being adopted.
	if err := s.store.Clear(); err != nil {
		log.Printf("Failed to clear persisted token: %v", err)
	}
	if s.token == "" && s.status == StatusUnauthenticated {
		return
	}
	s.token = ""
	s.identity = Identity{}
	s.status = StatusUnauthenticated
	s.epoch++
}

// decodeIdentity inspects the token payload without verifying the
// signature. Verification is the backend's responsibility; the decoded
// claims are a display hint only and never grant anything client-side.
func (s *Session) decodeIdentity(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, ErrMalformedToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Identity{}, ErrMalformedToken
	}
	if exp != nil && exp.Before(s.now()) {
		return Identity{}, ErrTokenExpired
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrMalformedToken
	}
	return Identity{Username: sub}, nil
}
