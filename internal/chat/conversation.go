package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mindhaven/companion/internal/api"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one entry in the conversation log. The emotion metadata fields
// are only ever populated on bot messages.
type Message struct {
	Role           Role
	Text           string
	Timestamp      time.Time
	Emotion        string
	Confidence     float64
	Recommendation string
	IsCrisis       bool
}

type State int

const (
	StateLoading State = iota
	StateIdle
	StateAwaiting
)

const (
	// WelcomeText seeds the log when history is empty or unavailable.
	WelcomeText = "Hello! I'm your virtual companion. How are you feeling today?"

	// connectivityFailureText stands in for a bot reply when the backend
	// cannot be reached.
	connectivityFailureText = "I'm having trouble connecting to my brain (backend). Please check if the server is running."
)

// Backend is the slice of the API client the conversation needs.
type Backend interface {
	History(ctx context.Context) ([]api.HistoryRecord, error)
	Chat(ctx context.Context, text string) (api.ChatResponse, error)
}

// Conversation owns the ordered message log for the active session and
// mediates submission as a small state machine: Loading -> Idle <-> Awaiting.
// At most one submission is in flight at a time, and a response that
// resolves after the session epoch has moved on is discarded rather than
// merged into the wrong session's log.
type Conversation struct {
	mu      sync.Mutex
	backend Backend
	epoch   func() uint64
	tag     uint64 // session epoch this log belongs to
	state   State
	log     []Message
	now     func() time.Time
}

func NewConversation(backend Backend, epoch func() uint64) *Conversation {
	c := &Conversation{
		backend: backend,
		epoch:   epoch,
		now:     time.Now,
	}
	c.Reset()
	return c
}

// Reset discards the log and returns to Loading. Called whenever the active
// identity changes.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tag = c.epoch()
	c.state = StateLoading
	c.log = nil
}

// LoadHistory populates the log from the backend once per session start.
// Empty results and fetch failures both seed a single welcome message;
// history is best-effort and its failure is not user-visible. The state is
// Idle afterwards in every case that still belongs to this session.
func (c *Conversation) LoadHistory(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return
	}
	tag := c.tag
	c.mu.Unlock()

	records, err := c.backend.History(ctx)
	if err != nil {
		log.Printf("History load failed, starting fresh: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tag != tag || c.epoch() != tag {
		// The session changed while the fetch was in flight.
		return
	}

	if err != nil || len(records) == 0 {
		c.log = []Message{{Role: RoleBot, Text: WelcomeText, Timestamp: c.now()}}
	} else {
		c.log = make([]Message, 0, len(records))
		for _, r := range records {
			c.log = append(c.log, messageFromRecord(r))
		}
	}
	c.state = StateIdle
}

// Submit runs one send cycle: append the user message, call the backend,
// then append exactly one outcome message, success or synthetic error.
// Blank input and submissions while one is already in flight are no-ops.
func (c *Conversation) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.log = append(c.log, Message{Role: RoleUser, Text: text, Timestamp: c.now()})
	c.state = StateAwaiting
	tag := c.tag
	c.mu.Unlock()

	resp, err := c.backend.Chat(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tag != tag || c.epoch() != tag {
		// Stale response: the log it was meant for is gone.
		return
	}

	if err != nil {
		log.Printf("Chat request failed: %v", err)
		c.log = append(c.log, Message{Role: RoleBot, Text: connectivityFailureText, Timestamp: c.now()})
	} else {
		c.log = append(c.log, Message{
			Role:           RoleBot,
			Text:           resp.BotResponse,
			Timestamp:      c.now(),
			Emotion:        resp.DetectedEmotion,
			Confidence:     resp.EmotionConfidence,
			Recommendation: resp.Recommendation,
			IsCrisis:       resp.IsCrisis,
		})
	}
	c.state = StateIdle
}

// Messages returns a copy of the log, earliest first.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.log))
	copy(out, c.log)
	return out
}

// Pending reports whether a submission is awaiting its outcome.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaiting
}

// State reports the current lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// messageFromRecord maps a backend history record into a log entry. Emotion
// metadata is kept only on bot entries; the backend also annotates user
// messages with the emotion it detected, but in the log that metadata
// belongs to the reply.
func messageFromRecord(r api.HistoryRecord) Message {
	m := Message{
		Text:      r.Content,
		Timestamp: r.Timestamp,
	}
	if r.Sender == "user" {
		m.Role = RoleUser
		return m
	}
	m.Role = RoleBot
	m.Emotion = r.DetectedEmotion
	m.Confidence = r.EmotionConfidence
	m.IsCrisis = r.IsCrisis
	return m
}
