package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/auth"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

// AuthHandler serves registration, login and guest sessions.
type AuthHandler struct {
	auth   *auth.Service
	logger zerolog.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(svc *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) decodeCredentials(r *http.Request) (*credentialsRequest, error) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, chaterr.New(chaterr.KindBadRequest, "malformed request body")
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, chaterr.New(chaterr.KindBadRequest, "valid email is required")
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		return nil, chaterr.New(chaterr.KindBadRequest, "password length out of range")
	}
	return &req, nil
}

func sessionResponse(sess *models.Session) map[string]any {
	return map[string]any{
		"token":      sess.Token,
		"user_id":    sess.UserID,
		"user_type":  sess.UserType,
		"expires_at": sess.ExpiresAt,
	}
}

// HandleRegister handles POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if chaterr.KindOf(err) == chaterr.KindDatabase {
			h.logger.Error().Err(err).Msg("register failed")
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(sess))
}

// HandleLogin handles POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleGuest handles POST /auth/guest: an anonymous throwaway session.
func (h *AuthHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.Guest(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("guest session failed")
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(sess))
}
