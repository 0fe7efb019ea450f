package api

import "time"

// Wire types for the companion backend. Field names follow the backend's
// JSON contract, not Go conventions.

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatResponse struct {
	BotResponse       string  `json:"bot_response"`
	DetectedEmotion   string  `json:"detected_emotion"`
	EmotionConfidence float64 `json:"emotion_confidence"`
	Recommendation    string  `json:"recommendation,omitempty"`
	IsCrisis          bool    `json:"is_crisis"`
}

type HistoryRecord struct {
	Sender            string    `json:"sender"` // "user" or "bot"
	Content           string    `json:"content"`
	DetectedEmotion   string    `json:"detected_emotion,omitempty"`
	EmotionConfidence float64   `json:"emotion_confidence,omitempty"`
	IsCrisis          bool      `json:"is_crisis,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type TrendPoint struct {
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}
