package models

import (
	"time"

	"github.com/google/uuid"
)

// UserType distinguishes registered users from ephemeral guests.
type UserType string

const (
	UserRegular UserType = "regular"
	UserGuest   UserType = "guest"
)

// User is an account. Guests have no email or password hash.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Type         UserType  `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an opaque bearer-token session.
type Session struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	UserType  UserType  `json:"user_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}
