package models

import "time"

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of a conversation's history.
type Session struct {
	ConversationID string    `json:"conversation_id"`
	Turns          []Turn    `json:"turns"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Answer is the result of a conversational query.
type Answer struct {
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	Sources        []ScoredChunk `json:"sources,omitempty"`
}
