package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chat"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
)

// maxEmbedMessages bounds the stateless history the widget may resend.
const maxEmbedMessages = 40

// MiniChatHandler serves the embedded widget surface: stateless, unauthenticated,
// origin-gated and token-budgeted.
type MiniChatHandler struct {
	chat   *chat.Service
	logger zerolog.Logger
}

// NewMiniChatHandler creates a mini-chat handler.
func NewMiniChatHandler(svc *chat.Service, logger zerolog.Logger) *MiniChatHandler {
	return &MiniChatHandler{chat: svc, logger: logger}
}

type miniChatRequest struct {
	ConversationID string             `json:"conversationId"`
	Mode           string             `json:"mode"`
	Messages       []chat.EmbedMessage `json:"messages"`
}

// HandleTurn handles POST /mini-chat. The full message array arrives each
// turn; nothing is persisted. A conversation over its token budget gets a
// fixed explanatory stream, not an error.
func (h *MiniChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req miniChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "malformed request body"))
		return
	}

	if req.ConversationID == "" {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "conversationId is required"))
		return
	}
	if !prompts.ValidEmbedMode(req.Mode) {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "unknown mode"))
		return
	}
	if len(req.Messages) == 0 || len(req.Messages) > maxEmbedMessages {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "message count out of range"))
		return
	}
	for _, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			respondError(w, chaterr.New(chaterr.KindBadRequest, "unknown message role"))
			return
		}
	}

	decision := h.chat.Gate().Check(req.ConversationID, req.Mode)
	if !decision.Allowed {
		streamSSE(w, r, h.chat.BudgetExceeded(req.Mode, decision), h.logger)
		return
	}

	events := h.chat.EmbedTurn(r.Context(), chat.EmbedInput{
		ConversationID: req.ConversationID,
		Mode:           req.Mode,
		Messages:       req.Messages,
	})
	streamSSE(w, r, events, h.logger)
}
