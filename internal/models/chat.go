package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can read a chat.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Chat represents one conversation. Created on the first message of a new id;
// immutable afterwards except for visibility. Deleting a chat cascades to its
// messages, votes and stream records.
type Chat struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
}
