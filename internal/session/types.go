package session

import "time"

// CreateRequest defines payload for opening a panel session.
type CreateRequest struct {
	ConversationMode bool `json:"conversation_mode"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID        string    `json:"session_id"`
	ChatID           string    `json:"chat_id"`
	Status           Status    `json:"status"`
	ConversationMode bool      `json:"conversation_mode"`
	Messages         []Message `json:"messages"`
	StartedAt        time.Time `json:"started_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	InactivityTTLMS  int64     `json:"inactivity_ttl_ms"`
}
