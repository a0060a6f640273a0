package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// DataStore defines the interface for durable storage of users, chats,
// messages, stream records, votes and documents.
// Both PostgresStore and SQLiteStore implement this interface.
//
// Lookup methods return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User and session operations
	CreateUser(ctx context.Context, email, passwordHash string, userType models.UserType) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateSession(ctx context.Context, token string, userID uuid.UUID, userType models.UserType, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (*models.Session, error)

	// Chat operations
	SaveChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	DeleteChatByID(ctx context.Context, id uuid.UUID) error
	UpdateChatVisibility(ctx context.Context, id uuid.UUID, visibility models.Visibility) error
	ListChatsByUserID(ctx context.Context, userID uuid.UUID, limit int, endingBefore *uuid.UUID) ([]models.Chat, error)

	// Message operations. Messages are append-only; within a chat the
	// created_at order is the canonical replay order.
	SaveMessages(ctx context.Context, messages []models.Message) error
	GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Message, error)
	GetLastMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error)

	// Stream registry operations. Records are insert-only and ordered by
	// creation; the last id for a chat is the current generation attempt.
	CreateStreamID(ctx context.Context, streamID string, chatID uuid.UUID) error
	GetStreamIDsByChatID(ctx context.Context, chatID uuid.UUID) ([]string, error)
	MostRecentStreamID(ctx context.Context, chatID uuid.UUID) (string, error)

	// Vote operations
	GetVotesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Vote, error)
	UpsertVote(ctx context.Context, vote *models.Vote) error

	// Document operations. Versions share an id; Get returns the newest.
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}
