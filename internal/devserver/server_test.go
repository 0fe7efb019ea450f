package devserver_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindhaven/companion/internal/api"
	"github.com/mindhaven/companion/internal/auth"
	"github.com/mindhaven/companion/internal/chat"
	"github.com/mindhaven/companion/internal/devserver"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := devserver.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server := devserver.NewServer(store, devserver.CannedResponder{}, []byte("test-secret"))
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestRegisterLoginChatFlow(t *testing.T) {
	ts := newTestServer(t)
	client := api.NewClient(ts.URL, 5*time.Second)
	ctx := context.Background()

	if err := client.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if err := client.Register(ctx, "alice", "pw"); !errors.Is(err, api.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	if _, err := client.Login(ctx, "alice", "wrong"); !errors.Is(err, api.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	token, err := client.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	client.SetTokenSource(func() string { return token })

	resp, err := client.Chat(ctx, "I feel anxious about everything")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if resp.DetectedEmotion != "fear" {
		t.Fatalf("unexpected emotion: %q", resp.DetectedEmotion)
	}
	if resp.EmotionConfidence <= 0 || resp.EmotionConfidence > 1 {
		t.Fatalf("confidence out of range: %v", resp.EmotionConfidence)
	}
	if resp.Recommendation == "" {
		t.Fatal("expected a coping recommendation for fear")
	}
	if resp.IsCrisis {
		t.Fatal("unexpected crisis flag")
	}

	history, err := client.History(ctx)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected user + bot history, got %d records", len(history))
	}
	if history[0].Sender != "user" || history[1].Sender != "bot" {
		t.Fatalf("history out of order: %+v", history)
	}

	trends, err := client.Trends(ctx)
	if err != nil {
		t.Fatalf("Trends err: %v", err)
	}
	if len(trends) != 1 || trends[0].Emotion != "fear" {
		t.Fatalf("unexpected trends: %+v", trends)
	}
}

func TestCrisisMessageShortCircuits(t *testing.T) {
	ts := newTestServer(t)
	client := api.NewClient(ts.URL, 5*time.Second)
	ctx := context.Background()

	if err := client.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	token, err := client.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	client.SetTokenSource(func() string { return token })

	resp, err := client.Chat(ctx, "sometimes I think about hurting myself... I want to hurt myself")
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if !resp.IsCrisis {
		t.Fatal("expected crisis flag")
	}
	if resp.DetectedEmotion != "crisis" || resp.EmotionConfidence != 1.0 {
		t.Fatalf("unexpected crisis metadata: %+v", resp)
	}
	if resp.Recommendation == "" {
		t.Fatal("expected a crisis recommendation")
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	ts := newTestServer(t)
	client := api.NewClient(ts.URL, 5*time.Second)

	fired := 0
	client.SetUnauthorizedHandler(func() { fired++ })

	if _, err := client.History(context.Background()); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected the unauthorized hook to fire once, got %d", fired)
	}
}

// TestClientStackAgainstDevserver wires the real session and conversation
// against the devserver, the same composition the CLI uses.
func TestClientStackAgainstDevserver(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	client := api.NewClient(ts.URL, 5*time.Second)
	tokenStore := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	session := auth.NewSession(client, tokenStore)
	client.SetTokenSource(session.Token)
	client.SetUnauthorizedHandler(session.HandleUnauthorized)

	if err := session.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if _, ok := session.CurrentIdentity(); ok {
		t.Fatal("register must not authenticate")
	}

	if err := session.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	identity, ok := session.CurrentIdentity()
	if !ok || identity.Username != "alice" {
		t.Fatalf("unexpected identity: %+v ok=%v", identity, ok)
	}

	conv := chat.NewConversation(client, session.Epoch)
	conv.LoadHistory(ctx)
	if messages := conv.Messages(); len(messages) != 1 || messages[0].Text != chat.WelcomeText {
		t.Fatalf("expected welcome seed for a fresh account, got %+v", messages)
	}

	conv.Submit(ctx, "I feel anxious today")
	messages := conv.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected welcome + user + bot, got %d", len(messages))
	}
	bot := messages[2]
	if bot.Role != chat.RoleBot || bot.Emotion != "fear" {
		t.Fatalf("unexpected bot reply: %+v", bot)
	}

	// A second login session sees the stored transcript instead of the seed.
	session.Logout()
	if err := session.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("second Login err: %v", err)
	}
	conv.Reset()
	conv.LoadHistory(ctx)
	messages = conv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected persisted user + bot history, got %d", len(messages))
	}
	if messages[0].Role != chat.RoleUser || messages[0].Text != "I feel anxious today" {
		t.Fatalf("unexpected history head: %+v", messages[0])
	}
}
