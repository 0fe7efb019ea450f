package devserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindhaven/companion/internal/api"
)

const (
	historyLimit = 50
	trendsLimit  = 20
)

type contextKey string

const userContextKey contextKey = "user"

// Server is a local stand-in for the production companion backend. It
// implements the same wire contract the client consumes, so the client can
// be developed and tested against it without the real inference service.
type Server struct {
	store     *Store
	responder Responder
	jwtSecret []byte
}

func NewServer(store *Store, responder Responder, jwtSecret []byte) *Server {
	return &Server{store: store, responder: responder, jwtSecret: jwtSecret}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Public routes
	r.Post("/token", s.TokenHandler)
	r.Post("/register", s.RegisterHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Bearer-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Post("/chat", s.ChatHandler)
		r.Get("/history", s.HistoryHandler)
		r.Get("/trends", s.TrendsHandler)
	})

	return r
}

func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := validateJWT(s.jwtSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := s.store.GetUserByUsername(username)
		if err != nil {
			log.Printf("Error in AuthMiddleware for user %s: %v", username, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body: "+err.Error(), http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		log.Printf("Error getting user %s: %v", username, err)
		http.Error(w, "Incorrect username or password", http.StatusUnauthorized)
		return
	}
	if user == nil || !checkPasswordHash(password, user.PasswordHash) {
		http.Error(w, "Incorrect username or password", http.StatusUnauthorized)
		return
	}

	s.writeToken(w, username)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error checking user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Username already registered", http.StatusBadRequest)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	if _, err := s.store.CreateUser(req.Username, hashedPassword); err != nil {
		log.Printf("Error creating user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	s.writeToken(w, req.Username)
}

// writeToken mirrors the production backend, which returns a token from
// both /token and /register. The client ignores the one from /register.
func (s *Server) writeToken(w http.ResponseWriter, username string) {
	token, err := generateJWT(s.jwtSecret, username)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", username, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(api.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey).(*User)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "Message text cannot be empty", http.StatusBadRequest)
		return
	}

	userMsg := StoredMessage{UserID: user.ID, Sender: "user", Content: req.Text}

	// Crisis check comes first and short-circuits everything else.
	if isCrisis, crisisMsg := checkCrisis(req.Text); isCrisis {
		userMsg.DetectedEmotion = "crisis"
		userMsg.HasEmotion = true
		userMsg.EmotionConfidence = 1.0
		userMsg.IsCrisis = true
		if err := s.store.SaveMessage(&userMsg); err != nil {
			log.Printf("Error saving crisis message for user %d: %v", user.ID, err)
		}
		botMsg := StoredMessage{UserID: user.ID, Sender: "bot", Content: crisisMsg}
		if err := s.store.SaveMessage(&botMsg); err != nil {
			log.Printf("Error saving crisis reply for user %d: %v", user.ID, err)
		}

		json.NewEncoder(w).Encode(api.ChatResponse{
			BotResponse:       crisisMsg,
			DetectedEmotion:   "crisis",
			EmotionConfidence: 1.0,
			Recommendation:    crisisRecommendation,
			IsCrisis:          true,
		})
		return
	}

	emotion, confidence := analyzeEmotion(req.Text)
	userMsg.DetectedEmotion = emotion
	userMsg.EmotionConfidence = confidence
	userMsg.HasEmotion = true
	if err := s.store.SaveMessage(&userMsg); err != nil {
		log.Printf("Error saving message for user %d: %v", user.ID, err)
	}
	if err := s.store.LogEmotion(user.ID, emotion, confidence); err != nil {
		log.Printf("Error logging emotion for user %d: %v", user.ID, err)
	}

	recommendation := recommendFor(emotion)

	reply, err := s.responder.Reply(r.Context(), req.Text, emotion)
	if err != nil {
		log.Printf("Error generating reply for user %d: %v", user.ID, err)
		http.Error(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	botMsg := StoredMessage{UserID: user.ID, Sender: "bot", Content: reply}
	if err := s.store.SaveMessage(&botMsg); err != nil {
		log.Printf("Error saving reply for user %d: %v", user.ID, err)
	}

	json.NewEncoder(w).Encode(api.ChatResponse{
		BotResponse:       reply,
		DetectedEmotion:   emotion,
		EmotionConfidence: confidence,
		Recommendation:    recommendation,
		IsCrisis:          false,
	})
}

func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey).(*User)

	messages, err := s.store.RecentMessages(user.ID, historyLimit)
	if err != nil {
		log.Printf("Error loading history for user %d: %v", user.ID, err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	records := make([]api.HistoryRecord, 0, len(messages))
	for _, msg := range messages {
		record := api.HistoryRecord{
			Sender:    msg.Sender,
			Content:   msg.Content,
			IsCrisis:  msg.IsCrisis,
			Timestamp: msg.Timestamp,
		}
		if msg.HasEmotion {
			record.DetectedEmotion = msg.DetectedEmotion
			record.EmotionConfidence = msg.EmotionConfidence
		}
		records = append(records, record)
	}
	json.NewEncoder(w).Encode(records)
}

func (s *Server) TrendsHandler(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey).(*User)

	logs, err := s.store.RecentEmotions(user.ID, trendsLimit)
	if err != nil {
		log.Printf("Error loading trends for user %d: %v", user.ID, err)
		http.Error(w, "Failed to load trends", http.StatusInternalServerError)
		return
	}

	points := make([]api.TrendPoint, 0, len(logs))
	for _, entry := range logs {
		points = append(points, api.TrendPoint{
			Emotion:    entry.Emotion,
			Confidence: entry.Confidence,
			Timestamp:  entry.Timestamp,
		})
	}
	json.NewEncoder(w).Encode(points)
}

// RunServer starts the devserver with graceful shutdown, in the same shape
// as a production listener.
func RunServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("devserver listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
