package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/api/middleware"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chat"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

// maxMessageChars bounds the concatenated text of an inbound message.
const maxMessageChars = 10000

var allowedAttachmentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ChatHandler serves the chat turn, resume, delete and visibility endpoints.
type ChatHandler struct {
	chat   *chat.Service
	logger zerolog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, logger: logger}
}

type turnRequest struct {
	ID         string          `json:"id"`
	Message    inboundMessage  `json:"message"`
	Model      string          `json:"selectedChatModel"`
	Visibility string          `json:"selectedVisibilityType"`
}

type inboundMessage struct {
	ID          string              `json:"id"`
	Role        string              `json:"role"`
	Parts       []models.Part       `json:"parts"`
	Attachments []models.Attachment `json:"attachments"`
}

// HandleTurn handles POST /chat: validate, start the turn, stream events.
func (h *ChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "malformed request body"))
		return
	}

	input, err := h.validateTurn(req, sess.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	events, err := h.chat.StartTurn(r.Context(), *input)
	if err != nil {
		h.logger.Warn().Err(err).Str("chat_id", req.ID).Msg("turn rejected")
		respondError(w, err)
		return
	}
	streamSSE(w, r, events, h.logger)
}

func (h *ChatHandler) validateTurn(req turnRequest, userID uuid.UUID) (*chat.TurnInput, error) {
	chatID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, chaterr.New(chaterr.KindBadRequest, "id must be a UUID")
	}
	if _, err := ulid.Parse(req.Message.ID); err != nil {
		return nil, chaterr.New(chaterr.KindBadRequest, "message id must be a ULID")
	}
	if req.Message.Role != string(models.RoleUser) {
		return nil, chaterr.New(chaterr.KindBadRequest, "message role must be user")
	}

	msg := models.Message{
		ID:          req.Message.ID,
		ChatID:      chatID,
		Role:        models.RoleUser,
		Parts:       req.Message.Parts,
		Attachments: req.Message.Attachments,
	}
	text := msg.PlainText()
	if text == "" && len(msg.Attachments) == 0 {
		return nil, chaterr.New(chaterr.KindBadRequest, "message is empty")
	}
	if len(text) > maxMessageChars {
		return nil, chaterr.New(chaterr.KindBadRequest, "message too long")
	}
	for _, a := range msg.Attachments {
		if a.URL == "" || !allowedAttachmentTypes[a.ContentType] {
			return nil, chaterr.New(chaterr.KindBadRequest, "unsupported attachment")
		}
	}

	model := req.Model
	if model == "" {
		model = chat.ModelChat
	}
	if model != chat.ModelChat && model != chat.ModelReasoning {
		return nil, chaterr.New(chaterr.KindBadRequest, "unknown model selection")
	}

	return &chat.TurnInput{
		ChatID:        chatID,
		Message:       msg,
		SelectedModel: model,
		Visibility:    models.Visibility(req.Visibility),
		UserID:        userID,
	}, nil
}

// HandleResume handles GET /chat?conversationId=: re-attach to the most recent
// generation attempt. 204 means there is nothing to replay.
func (h *ChatHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	chatID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "conversationId must be a UUID"))
		return
	}

	events, err := h.chat.Resume(r.Context(), chatID, sess.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	streamSSE(w, r, events, h.logger)
}

// HandleDelete handles DELETE /chat?id=.
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	chatID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "id must be a UUID"))
		return
	}

	if err := h.chat.Delete(r.Context(), chatID, sess.UserID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": chatID.String(), "status": "deleted"})
}

// HandleVisibility handles PATCH /chat/visibility?id=&visibility=.
func (h *ChatHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())

	chatID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, chaterr.New(chaterr.KindBadRequest, "id must be a UUID"))
		return
	}
	visibility := models.Visibility(r.URL.Query().Get("visibility"))

	if err := h.chat.SetVisibility(r.Context(), chatID, sess.UserID, visibility); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": chatID.String(), "visibility": string(visibility)})
}
