package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindhaven/companion/internal/auth"
)

type fakeAuthenticator struct {
	token       string
	loginErr    error
	registerErr error
}

func (f *fakeAuthenticator) Login(_ context.Context, _, _ string) (string, error) {
	return f.token, f.loginErr
}

func (f *fakeAuthenticator) Register(_ context.Context, _, _ string) error {
	return f.registerErr
}

// signToken builds a real HS256 token. The session never verifies the
// signature, so the signing key is irrelevant to these tests.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func newTestSession(t *testing.T, fake *fakeAuthenticator) (*auth.Session, *auth.FileTokenStore) {
	t.Helper()
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	return auth.NewSession(fake, store), store
}

func TestLoginDerivesIdentityFromSubjectClaim(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	session, store := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	identity, ok := session.CurrentIdentity()
	if !ok {
		t.Fatal("expected an authenticated identity")
	}
	if identity.Username != "alice" {
		t.Fatalf("unexpected username: got %q", identity.Username)
	}
	if session.Token() != token {
		t.Fatal("session does not hold the issued token")
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if persisted != token {
		t.Fatal("token was not persisted on login")
	}
}

func TestLoginWithoutExpiryClaimStillAuthenticates(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "bob"})
	session, _ := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "bob", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if _, ok := session.CurrentIdentity(); !ok {
		t.Fatal("expected an authenticated identity")
	}
}

func TestLoginFailureLeavesStateUnchanged(t *testing.T) {
	session, _ := newTestSession(t, &fakeAuthenticator{loginErr: errors.New("boom")})

	if err := session.Login(context.Background(), "alice", "pw"); err == nil {
		t.Fatal("expected login error")
	}
	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("failed login must not authenticate")
	}
	if session.Token() != "" {
		t.Fatal("failed login must not retain a token")
	}
}

func TestExpiredTokenIsNeverRetained(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()})
	session, store := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("expired token must not authenticate")
	}
	if session.Token() != "" {
		t.Fatal("expired token must be cleared")
	}
	if persisted, _ := store.Load(); persisted != "" {
		t.Fatal("expired token must not stay persisted")
	}
}

func TestMalformedTokenIsNeverRetained(t *testing.T) {
	session, _ := newTestSession(t, &fakeAuthenticator{token: "not-a-jwt"})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("undecodable token must not authenticate")
	}
	if session.Token() != "" {
		t.Fatal("undecodable token must be cleared")
	}
}

func TestTokenWithoutSubjectIsRejected(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	session, _ := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("token without a subject must not authenticate")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "alice"})
	session, _ := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	session.Logout()
	statusAfterFirst := session.Status()
	epochAfterFirst := session.Epoch()

	session.Logout()
	if session.Status() != statusAfterFirst {
		t.Fatal("second logout changed status")
	}
	if session.Epoch() != epochAfterFirst {
		t.Fatal("second logout changed the epoch")
	}
	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("identity survived logout")
	}
}

func TestResumeFromPersistedToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "carol", "exp": time.Now().Add(time.Hour).Unix()})
	session, store := newTestSession(t, &fakeAuthenticator{})
	if err := store.Save(token); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	session.Resume()

	identity, ok := session.CurrentIdentity()
	if !ok {
		t.Fatal("expected resumed identity")
	}
	if identity.Username != "carol" {
		t.Fatalf("unexpected username: got %q", identity.Username)
	}
}

func TestResumeClearsExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "carol", "exp": time.Now().Add(-time.Hour).Unix()})
	session, store := newTestSession(t, &fakeAuthenticator{})
	if err := store.Save(token); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	session.Resume()

	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("expired persisted token must not authenticate")
	}
	if persisted, _ := store.Load(); persisted != "" {
		t.Fatal("expired persisted token must be removed")
	}
}

func TestHandleUnauthorizedDeauthenticatesOnce(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "alice"})
	session, _ := newTestSession(t, &fakeAuthenticator{token: token})

	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	epochBefore := session.Epoch()

	// Several concurrent calls can each see a 401; the transition to
	// unauthenticated must still happen exactly once.
	session.HandleUnauthorized()
	session.HandleUnauthorized()
	session.HandleUnauthorized()

	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("expected unauthenticated state")
	}
	if got := session.Epoch(); got != epochBefore+1 {
		t.Fatalf("expected a single epoch bump, got %d -> %d", epochBefore, got)
	}
}

func TestEpochAdvancesOnLogin(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "alice"})
	session, _ := newTestSession(t, &fakeAuthenticator{token: token})

	before := session.Epoch()
	if err := session.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if session.Epoch() == before {
		t.Fatal("login must advance the epoch")
	}
}
