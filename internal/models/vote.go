package models

import "github.com/google/uuid"

// Vote is a per-message up/down vote. One row per (chat, message); repeated
// votes overwrite.
type Vote struct {
	ChatID    uuid.UUID `json:"chat_id"`
	MessageID string    `json:"message_id"`
	IsUpvoted bool      `json:"is_upvoted"`
}
