package models

import "time"

// Message roles. Messages are append-only; only whole-session deletes exist.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationSession groups an ordered sequence of chat messages for one
// user. LastActivity is touched on every message append and drives the
// retention sweeper.
type ConversationSession struct {
	ID           string    `json:"id" bson:"_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	LastActivity time.Time `json:"last_activity" bson:"last_activity"`
}

// ChatMessage is a single user question or assistant answer within a session.
// SelectedText is only set on user messages, Sources only on assistant ones.
type ChatMessage struct {
	ID           string             `json:"id" bson:"_id"`
	SessionID    string             `json:"session_id" bson:"session_id"`
	Role         string             `json:"role" bson:"role"`
	Content      string             `json:"content" bson:"content"`
	SelectedText string             `json:"selected_text,omitempty" bson:"selected_text,omitempty"`
	Sources      []RetrievedContext `json:"sources,omitempty" bson:"sources,omitempty"`
	Timestamp    time.Time          `json:"timestamp" bson:"timestamp"`
}

// HistoryResponse is the payload for GET /history/:session_id.
type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}
