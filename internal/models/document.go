package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentKind classifies an artifact document.
type DocumentKind string

const (
	DocumentText  DocumentKind = "text"
	DocumentCode  DocumentKind = "code"
	DocumentSheet DocumentKind = "sheet"
	DocumentImage DocumentKind = "image"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentText, DocumentCode, DocumentSheet, DocumentImage:
		return true
	}
	return false
}

// Document is an artifact created or updated by the document tools. Versions
// share an id and are distinguished by created_at.
type Document struct {
	ID        uuid.UUID    `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Title     string       `json:"title"`
	Kind      DocumentKind `json:"kind"`
	Content   string       `json:"content"`
	UserID    uuid.UUID    `json:"user_id"`
}
