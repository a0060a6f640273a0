package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/api/middleware"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

// VoteHandler serves per-message up/down votes.
type VoteHandler struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewVoteHandler creates a vote handler.
func NewVoteHandler(ds store.DataStore, logger zerolog.Logger) *VoteHandler {
	return &VoteHandler{store: ds, logger: logger}
}

// loadReadable returns the chat when the session may read it: the owner
// always, anyone authenticated when the chat is public.
func (h *VoteHandler) loadReadable(r *http.Request, chatID uuid.UUID) (*models.Chat, error) {
	sess := middleware.GetSessionFromContext(r.Context())
	conv, err := h.store.GetChatByID(r.Context(), chatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load chat", err)
	}
	if conv == nil {
		return nil, chaterr.New(chaterr.KindNotFound, "chat not found")
	}
	if conv.Visibility != models.VisibilityPublic && conv.UserID != sess.UserID {
		return nil, chaterr.New(chaterr.KindForbidden, "chat belongs to another user")
	}
	return conv, nil
}

// HandleList handles GET /vote?chatId=.
func (h *VoteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(r.URL.Query().Get("chatId"))
	if err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "chatId must be a UUID"))
		return
	}
	if _, err := h.loadReadable(r, chatID); err != nil {
		respondError(w, err)
		return
	}

	votes, err := h.store.GetVotesByChatID(r.Context(), chatID)
	if err != nil {
		h.logger.Error().Err(err).Msg("list votes failed")
		respondError(w, chaterr.Wrap(chaterr.KindDatabase, "list votes", err))
		return
	}
	if votes == nil {
		votes = []models.Vote{}
	}
	respondJSON(w, http.StatusOK, votes)
}

type voteRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Type      string `json:"type"` // "up" or "down"
}

// HandleUpsert handles PATCH /vote. Only the chat owner may vote; repeated
// votes on the same message overwrite.
func (h *VoteHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "malformed request body"))
		return
	}
	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "chatId must be a UUID"))
		return
	}
	if req.MessageID == "" {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "messageId is required"))
		return
	}
	if req.Type != "up" && req.Type != "down" {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "type must be up or down"))
		return
	}

	conv, err := h.store.GetChatByID(r.Context(), chatID)
	if err != nil {
		respondError(w, chaterr.Wrap(chaterr.KindDatabase, "load chat", err))
		return
	}
	if conv == nil {
		respondError(w, chaterr.New(chaterr.KindNotFound, "chat not found"))
		return
	}
	if conv.UserID != sess.UserID {
		respondError(w, chaterr.New(chaterr.KindForbidden, "chat belongs to another user"))
		return
	}

	vote := &models.Vote{
		ChatID:    chatID,
		MessageID: req.MessageID,
		IsUpvoted: req.Type == "up",
	}
	if err := h.store.UpsertVote(r.Context(), vote); err != nil {
		h.logger.Error().Err(err).Msg("upsert vote failed")
		respondError(w, chaterr.Wrap(chaterr.KindDatabase, "upsert vote", err))
		return
	}
	respondJSON(w, http.StatusOK, vote)
}
