package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/nisa.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/nisa.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE,
		password_hash TEXT,
		user_type TEXT NOT NULL DEFAULT 'regular',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_type TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		parts TEXT NOT NULL DEFAULT '[]',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stream_records (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS votes (
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		is_upvoted INTEGER NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		title TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (id, created_at)
	);

	CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_streams_chat_created ON stream_records(chat_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string, userType models.UserType) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Type:         userType,
		CreatedAt:    time.Now().UTC(),
	}
	var emailArg *string
	if email != "" {
		emailArg = &email
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, user_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID.String(), emailArg, passwordHash, userType, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, user_type, created_at
		FROM users WHERE email = ?
	`, email).Scan(&id, &user.Email, &user.PasswordHash, &user.Type, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSession stores a session token.
func (s *SQLiteStore) CreateSession(ctx context.Context, token string, userID uuid.UUID, userType models.UserType, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, user_type, expires_at)
		VALUES (?, ?, ?, ?)
	`, token, userID.String(), userType, expiresAt)
	return err
}

// GetSession retrieves a session by token.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	sess := &models.Session{}
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, user_type, expires_at
		FROM sessions WHERE token = ?
	`, token).Scan(&sess.Token, &userID, &sess.UserType, &sess.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	sess.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SaveChat inserts a chat row.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat *models.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, visibility, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, chat.ID.String(), chat.UserID.String(), chat.Title, chat.Visibility, chat.CreatedAt)
	return err
}

// GetChatByID retrieves a chat by id.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var chatID, userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, visibility, created_at
		FROM chats WHERE id = ?
	`, id.String()).Scan(&chatID, &userID, &chat.Title, &chat.Visibility, &chat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if chat.ID, err = uuid.Parse(chatID); err != nil {
		return nil, err
	}
	if chat.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	return chat, nil
}

// DeleteChatByID deletes a chat; messages, votes and stream records cascade.
func (s *SQLiteStore) DeleteChatByID(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id.String())
	return err
}

// UpdateChatVisibility flips the one mutable chat field.
func (s *SQLiteStore) UpdateChatVisibility(ctx context.Context, id uuid.UUID, visibility models.Visibility) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET visibility = ? WHERE id = ?`, visibility, id.String())
	return err
}

// ListChatsByUserID lists a user's chats newest-first with cursor pagination.
func (s *SQLiteStore) ListChatsByUserID(ctx context.Context, userID uuid.UUID, limit int, endingBefore *uuid.UUID) ([]models.Chat, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, user_id, title, visibility, created_at
		FROM chats WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`
	args := []any{userID.String(), limit}
	if endingBefore != nil {
		query = `
			SELECT id, user_id, title, visibility, created_at
			FROM chats WHERE user_id = ?
			AND created_at < (SELECT created_at FROM chats WHERE id = ?)
			ORDER BY created_at DESC LIMIT ?
		`
		args = []any{userID.String(), endingBefore.String(), limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		var chatID, owner string
		if err := rows.Scan(&chatID, &owner, &c.Title, &c.Visibility, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(chatID); err != nil {
			return nil, err
		}
		if c.UserID, err = uuid.Parse(owner); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// SaveMessages inserts messages in order within one transaction.
func (s *SQLiteStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range messages {
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return err
		}
		attachments := []byte("[]")
		if m.Attachments != nil {
			if attachments, err = json.Marshal(m.Attachments); err != nil {
				return err
			}
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, role, parts, attachments, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.ID, m.ChatID.String(), m.Role, string(parts), string(attachments), m.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetMessagesByChatID retrieves all messages of a chat in canonical order.
func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, parts, attachments, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

// GetLastMessage retrieves the newest message of a chat.
func (s *SQLiteStore) GetLastMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, parts, attachments, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := s.scanMessages(rows)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *SQLiteStore) scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var chatID, parts, attachments string
		if err := rows.Scan(&m.ID, &chatID, &m.Role, &parts, &attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if m.ChatID, err = uuid.Parse(chatID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(parts), &m.Parts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateStreamID appends a stream record for a chat.
func (s *SQLiteStore) CreateStreamID(ctx context.Context, streamID string, chatID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_records (id, chat_id, created_at) VALUES (?, ?, ?)
	`, streamID, chatID.String(), time.Now().UTC())
	return err
}

// GetStreamIDsByChatID returns a chat's stream ids in creation order.
func (s *SQLiteStore) GetStreamIDsByChatID(ctx context.Context, chatID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM stream_records WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC
	`, chatID.String())
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
func (s *SQLiteStore) MostRecentStreamID(ctx context.Context, chatID uuid.UUID) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM stream_records WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, chatID.String()).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// GetVotesByChatID retrieves all votes for a chat.
func (s *SQLiteStore) GetVotesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, message_id, is_upvoted FROM votes WHERE chat_id = ?
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		var cid string
		if err := rows.Scan(&cid, &v.MessageID, &v.IsUpvoted); err != nil {
			return nil, err
		}
		if v.ChatID, err = uuid.Parse(cid); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// UpsertVote records or overwrites a vote.
func (s *SQLiteStore) UpsertVote(ctx context.Context, vote *models.Vote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (chat_id, message_id, is_upvoted)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvoted = excluded.is_upvoted
	`, vote.ChatID.String(), vote.MessageID, vote.IsUpvoted)
	return err
}

// SaveDocument inserts a document version.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, created_at, title, kind, content, user_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID.String(), doc.CreatedAt, doc.Title, doc.Kind, doc.Content, doc.UserID.String())
	return err
}

// GetDocumentByID retrieves the newest version of a document.
func (s *SQLiteStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	var docID, userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, title, kind, content, user_id
		FROM documents WHERE id = ?
		ORDER BY created_at DESC LIMIT 1
	`, id.String()).Scan(&docID, &doc.CreatedAt, &doc.Title, &doc.Kind, &doc.Content, &userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if doc.ID, err = uuid.Parse(docID); err != nil {
		return nil, err
	}
	if doc.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	return doc, nil
}
