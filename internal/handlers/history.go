package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/api/middleware"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler serves the signed-in user's chat list.
type HistoryHandler struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(ds store.DataStore, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{store: ds, logger: logger}
}

// HandleList handles GET /history?limit=&ending_before=. Results are newest
// first; ending_before pages backwards from a chat id.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			respondError(w, chaterr.New(chaterr.KindBadRequest, "limit out of range"))
			return
		}
		limit = n
	}

	var endingBefore *uuid.UUID
	if raw := r.URL.Query().Get("ending_before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, chaterr.New(chaterr.KindBadRequest, "ending_before must be a UUID"))
			return
		}
		endingBefore = &id
	}

	// Fetch one extra row to report whether more pages exist.
	chats, err := h.store.ListChatsByUserID(r.Context(), sess.UserID, limit+1, endingBefore)
	if err != nil {
		h.logger.Error().Err(err).Msg("list chats failed")
		respondError(w, chaterr.Wrap(chaterr.KindDatabase, "list chats", err))
		return
	}

	hasMore := len(chats) > limit
	if hasMore {
		chats = chats[:limit]
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"chats":    chats,
		"has_more": hasMore,
	})
}
