package devserver

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are a warm, supportive wellness companion. Listen to what the user " +
		"shares, acknowledge how they seem to be feeling, and respond with empathy in two or three " +
		"sentences. Never give medical advice or diagnoses. If the user seems to be in distress, " +
		"gently encourage them to talk to someone they trust."
)

// Responder produces the bot's conversational reply for one user message.
type Responder interface {
	Reply(ctx context.Context, userText, emotion string) (string, error)
	Close()
}

// GeminiResponder generates replies with the Gemini API.
type GeminiResponder struct {
	client *genai.Client
}

func NewGeminiResponder(ctx context.Context, apiKey string) (*GeminiResponder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiResponder{client: client}, nil
}

func (r *GeminiResponder) Close() {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (r *GeminiResponder) Reply(ctx context.Context, userText, emotion string) (string, error) {
	model := r.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	prompt := userText
	if emotion != "" && emotion != "neutral" {
		prompt = fmt.Sprintf("(The user's message reads as %s.) %s", emotion, userText)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Println("Gemini response was empty or had no valid candidates/parts.")
		return "I'm here with you. Tell me a bit more about what's on your mind.", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		return "I'm here with you. Tell me a bit more about what's on your mind.", nil
	}
	return responseText.String(), nil
}

// CannedResponder answers from fixed templates keyed by detected emotion.
// Used when no Gemini API key is configured, and in tests.
type CannedResponder struct{}

var cannedReplies = map[string]string{
	"sadness":  "I hear you. It sounds like things feel heavy right now, and that's okay to say out loud.",
	"joy":      "That's lovely to hear! Hold onto that feeling for a moment.",
	"love":     "That sounds really meaningful. Connection like that matters.",
	"anger":    "That sounds genuinely frustrating. Your feelings make sense.",
	"fear":     "I hear you. Feeling anxious is exhausting, and you're not alone in it.",
	"surprise": "That sounds like a lot to take in. Give yourself a moment to process it.",
}

const cannedDefaultReply = "Thank you for sharing that with me. How does that make you feel?"

func (CannedResponder) Reply(_ context.Context, _ string, emotion string) (string, error) {
	if reply, ok := cannedReplies[emotion]; ok {
		return reply, nil
	}
	return cannedDefaultReply, nil
}

func (CannedResponder) Close() {}
