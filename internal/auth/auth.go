// Package auth implements minimal bearer-token session authentication:
// registered users with bcrypt password hashes, plus ephemeral guests.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

const sessionTTL = 30 * 24 * time.Hour

// Service resolves and issues sessions.
type Service struct {
	store store.DataStore
}

// NewService creates an auth service.
func NewService(ds store.DataStore) *Service {
	return &Service{store: ds}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*models.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().Add(sessionTTL)
	if err := s.store.CreateSession(ctx, token, user.ID, user.Type, expires); err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "create session", err)
	}
	return &models.Session{
		Token:     token,
		UserID:    user.ID,
		UserType:  user.Type,
		ExpiresAt: expires,
	}, nil
}

// Register creates a user with a bcrypt password hash and issues a session.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Session, error) {
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "lookup user", err)
	}
	if existing != nil {
		return nil, chaterr.New(chaterr.KindBadRequest, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, email, string(hash), models.UserRegular)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "create user", err)
	}
	return s.issueSession(ctx, user)
}

// Login verifies credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "lookup user", err)
	}
	if user == nil {
		return nil, chaterr.New(chaterr.KindUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, chaterr.New(chaterr.KindUnauthorized, "invalid credentials")
	}
	return s.issueSession(ctx, user)
}

// Guest creates an anonymous user and issues a session for it.
func (s *Service) Guest(ctx context.Context) (*models.Session, error) {
	user, err := s.store.CreateUser(ctx, "", "", models.UserGuest)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "create guest", err)
	}
	return s.issueSession(ctx, user)
}

// Resolve returns the session for a bearer token, or nil when the token is
// unknown or expired.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "lookup session", err)
	}
	if sess == nil || sess.Expired() {
		return nil, nil
	}
	return sess, nil
}
