package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamRecord ties one generation attempt to its chat. Records are insert-only
// and created in generation-start order; the newest record for a chat is the
// current attempt.
type StreamRecord struct {
	ID        string    `json:"id"` // ULID
	ChatID    uuid.UUID `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}
