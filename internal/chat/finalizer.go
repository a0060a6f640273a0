package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/metrics"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

// LastAssistantMessage returns the trailing assistant message of a model
// response, or false when the response contains none. An assistant-less
// response is an invariant violation the caller must surface, not swallow.
func LastAssistantMessage(messages []llm.ChatMessage) (*llm.ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return &messages[i], true
		}
	}
	return nil, false
}

// Finalizer writes the turn's single assistant message once generation
// completes. The write is fire-and-forget relative to the client response:
// the streamed content has already been delivered.
type Finalizer struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewFinalizer creates a finalizer.
func NewFinalizer(ds store.DataStore, logger zerolog.Logger) *Finalizer {
	return &Finalizer{store: ds, logger: logger}
}

// Finalize identifies the turn's assistant output and persists exactly one
// message row for it. parts is the part sequence collected while streaming
// (text, reasoning, tool calls and results, in emission order).
//
// A missing assistant message is fatal for the turn and returned loudly. A
// persistence failure is retried once, then logged and counted; the returned
// message is still valid for the finish event either way.
func (f *Finalizer) Finalize(ctx context.Context, chatID uuid.UUID, responseMessages []llm.ChatMessage, parts []models.Part) (*models.Message, error) {
	last, ok := LastAssistantMessage(responseMessages)
	if !ok {
		return nil, chaterr.New(chaterr.KindNoAssistantOutput, "model response contains no assistant message")
	}

	if len(parts) == 0 {
		if text, _ := last.Content.(string); text != "" {
			parts = []models.Part{{Type: models.PartText, Text: text}}
		}
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}

	err := f.store.SaveMessages(ctx, []models.Message{*msg})
	if err != nil {
		// One immediate retry covers transient pool exhaustion.
		err = f.store.SaveMessages(ctx, []models.Message{*msg})
	}
	if err != nil {
		metrics.FinalizerFailures.Inc()
		f.logger.Error().Err(err).
			Str("chat_id", chatID.String()).
			Str("message_id", msg.ID).
			Msg("assistant message persistence failed; streamed content was delivered but not stored")
	}

	return msg, nil
}
