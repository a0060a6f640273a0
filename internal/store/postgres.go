package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string, userType models.UserType) (*models.User, error) {
	user := &models.User{}
	var emailArg *string
	if email != "" {
		emailArg = &email
	}
	var emailOut *string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, user_type)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, user_type, created_at
	`, emailArg, passwordHash, userType).Scan(
		&user.ID,
		&emailOut,
		&user.PasswordHash,
		&user.Type,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if emailOut != nil {
		user.Email = *emailOut
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, user_type, created_at
		FROM users WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Type,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateSession stores a session token.
func (s *PostgresStore) CreateSession(ctx context.Context, token string, userID uuid.UUID, userType models.UserType, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token, user_id, user_type, expires_at)
		VALUES ($1, $2, $3, $4)
	`, token, userID, userType, expiresAt)
	return err
}

// GetSession retrieves a session by token.
func (s *PostgresStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT token, user_id, user_type, expires_at
		FROM sessions WHERE token = $1
	`, token).Scan(
		&sess.Token,
		&sess.UserID,
		&sess.UserType,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// SaveChat inserts a chat row.
func (s *PostgresStore) SaveChat(ctx context.Context, chat *models.Chat) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, user_id, title, visibility)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, chat.ID, chat.UserID, chat.Title, chat.Visibility).Scan(&chat.CreatedAt)
}

// GetChatByID retrieves a chat by id.
func (s *PostgresStore) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, visibility, created_at
		FROM chats WHERE id = $1
	`, id).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// DeleteChatByID deletes a chat; messages, votes and stream records cascade.
func (s *PostgresStore) DeleteChatByID(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	return err
}

// UpdateChatVisibility flips the one mutable chat field.
func (s *PostgresStore) UpdateChatVisibility(ctx context.Context, id uuid.UUID, visibility models.Visibility) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET visibility = $2 WHERE id = $1`, id, visibility)
	return err
}

// ListChatsByUserID lists a user's chats newest-first with cursor pagination.
func (s *PostgresStore) ListChatsByUserID(ctx context.Context, userID uuid.UUID, limit int, endingBefore *uuid.UUID) ([]models.Chat, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, user_id, title, visibility, created_at
		FROM chats WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`
	args := []any{userID, limit}
	if endingBefore != nil {
		query = `
			SELECT id, user_id, title, visibility, created_at
			FROM chats WHERE user_id = $1
			AND created_at < (SELECT created_at FROM chats WHERE id = $3)
			ORDER BY created_at DESC LIMIT $2
		`
		args = append(args, *endingBefore)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// SaveMessages inserts messages in order within one transaction.
func (s *PostgresStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range messages {
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return err
		}
		attachments, err := json.Marshal(m.Attachments)
		if err != nil {
			return err
		}
		if m.Attachments == nil {
			attachments = []byte("[]")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, chat_id, role, parts, attachments, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.ID, m.ChatID, m.Role, parts, attachments, m.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetMessagesByChatID retrieves all messages of a chat in canonical order.
func (s *PostgresStore) GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, role, parts, attachments, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetLastMessage retrieves the newest message of a chat.
func (s *PostgresStore) GetLastMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, role, parts, attachments, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var parts, attachments []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &parts, &attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateStreamID appends a stream record for a chat.
func (s *PostgresStore) CreateStreamID(ctx context.Context, streamID string, chatID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stream_records (id, chat_id) VALUES ($1, $2)
	`, streamID, chatID)
	return err
}

// GetStreamIDsByChatID returns a chat's stream ids in creation order.
func (s *PostgresStore) GetStreamIDsByChatID(ctx context.Context, chatID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM stream_records WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MostRecentStreamID returns the newest stream id for a chat, or "" if none.
func (s *PostgresStore) MostRecentStreamID(ctx context.Context, chatID uuid.UUID) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM stream_records WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, chatID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// GetVotesByChatID retrieves all votes for a chat.
func (s *PostgresStore) GetVotesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Vote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chat_id, message_id, is_upvoted FROM votes WHERE chat_id = $1
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ChatID, &v.MessageID, &v.IsUpvoted); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// UpsertVote records or overwrites a vote.
func (s *PostgresStore) UpsertVote(ctx context.Context, vote *models.Vote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO votes (chat_id, message_id, is_upvoted)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvoted = $3
	`, vote.ChatID, vote.MessageID, vote.IsUpvoted)
	return err
}

// SaveDocument inserts a document version.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, kind, content, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, doc.ID, doc.Title, doc.Kind, doc.Content, doc.UserID).Scan(&doc.CreatedAt)
}

// GetDocumentByID retrieves the newest version of a document.
func (s *PostgresStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, title, kind, content, user_id
		FROM documents WHERE id = $1
		ORDER BY created_at DESC LIMIT 1
	`, id).Scan(
		&doc.ID,
		&doc.CreatedAt,
		&doc.Title,
		&doc.Kind,
		&doc.Content,
		&doc.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}
