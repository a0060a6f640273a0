// Package chat implements the generation pipeline: one conversation turn as
// an asynchronous, interruptible, resumable unit of work.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/gate"
	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/metrics"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
	"github.com/agasthyaps/nisa-labs-sub000/internal/tools"
)

const (
	// MaxToolRounds bounds sequential tool-use steps within one turn.
	MaxToolRounds = 5
	// ResumeGrace covers the race between "generation finished and was
	// persisted" and "the client's resume request arrives".
	ResumeGrace = 15 * time.Second
)

// Selectable model variants.
const (
	ModelChat      = "chat"
	ModelReasoning = "chat-reasoning"
)

// ModelConfig names the provider models per role.
type ModelConfig struct {
	Chat      string
	Reasoning string
	Title     string
}

// Service orchestrates turns: it validates input, loads history, augments
// attachments, drives the model stream, and finalizes persistence.
type Service struct {
	store       store.DataStore
	provider    llm.Provider
	registry    *tools.Registry
	streams     *stream.Context // nil: resume unsupported, one-shot streaming
	transcriber llm.Transcriber
	finalizer   *Finalizer
	gate        *gate.Gate
	models      ModelConfig
	logger      zerolog.Logger
}

// NewService wires the pipeline. streams and transcriber may be nil; gate is
// required only when the embedded surface is served.
func NewService(ds store.DataStore, provider llm.Provider, registry *tools.Registry, streams *stream.Context, transcriber llm.Transcriber, g *gate.Gate, mc ModelConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:       ds,
		provider:    provider,
		registry:    registry,
		streams:     streams,
		transcriber: transcriber,
		finalizer:   NewFinalizer(ds, logger),
		gate:        g,
		models:      mc,
		logger:      logger,
	}
}

// Gate exposes the token-budget gate for the embedded surface's pre-check.
func (s *Service) Gate() *gate.Gate { return s.gate }

// TurnInput is one validated chat turn request.
type TurnInput struct {
	ChatID        uuid.UUID
	Message       models.Message
	SelectedModel string
	Visibility    models.Visibility
	UserID        uuid.UUID
}

// StartTurn runs one turn through Authorizing, LoadingHistory, Augmenting and
// into Generating, returning the event stream for the originating client.
// The inbound user message is always persisted before the model call begins,
// and the model call outlives the caller's request context.
func (s *Service) StartTurn(ctx context.Context, in TurnInput) (<-chan stream.Event, error) {
	// Authorizing
	conv, err := s.store.GetChatByID(ctx, in.ChatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load chat", err)
	}
	if conv == nil {
		visibility := in.Visibility
		if !visibility.Valid() {
			visibility = models.VisibilityPrivate
		}
		conv = &models.Chat{
			ID:         in.ChatID,
			UserID:     in.UserID,
			Title:      s.deriveTitle(ctx, in.Message.PlainText()),
			Visibility: visibility,
		}
		if err := s.store.SaveChat(ctx, conv); err != nil {
			return nil, chaterr.Wrap(chaterr.KindDatabase, "create chat", err)
		}
	} else if conv.UserID != in.UserID {
		return nil, chaterr.New(chaterr.KindForbidden, "chat belongs to another user")
	}

	// LoadingHistory
	history, err := s.store.GetMessagesByChatID(ctx, in.ChatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load history", err)
	}

	// Augmenting
	s.augment(ctx, &in.Message)

	// The user's message lands before the model call so a reload always sees
	// it even if generation fails.
	if in.Message.CreatedAt.IsZero() {
		in.Message.CreatedAt = time.Now().UTC()
	}
	if err := s.store.SaveMessages(ctx, []models.Message{in.Message}); err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "save user message", err)
	}

	streamID := ulid.Make().String()
	if err := s.store.CreateStreamID(ctx, streamID, in.ChatID); err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "record stream start", err)
	}

	metrics.TurnsStarted.WithLabelValues("chat").Inc()

	model := s.models.Chat
	var active []tools.Tool
	if in.SelectedModel == ModelReasoning {
		// Tools are disabled entirely for the reasoning variant.
		model = s.models.Reasoning
	} else {
		active = s.registry.Active(nil)
	}

	g := generation{
		chatID:   in.ChatID,
		messages: s.providerHistory(history, in.Message),
		model:    model,
		active:   active,
		turnCtx:  tools.TurnContext{UserID: in.UserID},
		surface:  "chat",
		persist:  true,
	}

	producer := func(pctx context.Context) <-chan stream.Event {
		return s.runGeneration(pctx, g)
	}

	if s.streams != nil {
		out, err := s.streams.Begin(ctx, streamID, producer)
		if err == nil {
			return out, nil
		}
		s.logger.Warn().Err(err).Str("stream_id", streamID).Msg("resumable wrap failed, streaming one-shot")
	}
	return oneShot(ctx, producer), nil
}

// oneShot runs a producer without a broker. The producer still outlives the
// request: ctx only gates delivery on the returned channel, and after a
// disconnect the remainder is drained so finalization always completes.
func oneShot(ctx context.Context, produce stream.ProducerFunc) <-chan stream.Event {
	src := produce(context.WithoutCancel(ctx))
	out := make(chan stream.Event, 32)
	go func() {
		defer close(out)
		clientGone := false
		for ev := range src {
			if clientGone {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				clientGone = true
			}
		}
	}()
	return out
}

// providerHistory converts stored history plus the inbound message into
// provider messages under the assembled system prompt.
func (s *Service) providerHistory(history []models.Message, inbound models.Message) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, llm.TextMessage("system", prompts.System()))
	for _, m := range history {
		if text := m.PlainText(); text != "" {
			msgs = append(msgs, llm.TextMessage(string(m.Role), text))
		}
	}
	msgs = append(msgs, llm.TextMessage(string(inbound.Role), inbound.PlainText()))
	return msgs
}

// deriveTitle asks the title model for a short chat title, falling back to a
// truncation of the message itself.
func (s *Service) deriveTitle(ctx context.Context, text string) string {
	fallback := text
	if len(fallback) > 80 {
		fallback = fallback[:80]
	}
	if fallback == "" {
		fallback = "New chat"
	}

	prompt := text
	if len(prompt) > 500 {
		prompt = prompt[:500]
	}
	resp, err := s.provider.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: s.models.Title,
		Messages: []llm.ChatMessage{
			llm.TextMessage("system", prompts.TitleInstruction),
			llm.TextMessage("user", prompt),
		},
		MaxTokens: 40,
	})
	if err != nil || len(resp.Choices) == 0 {
		return fallback
	}
	title, _ := resp.Choices[0].Message.Content.(string)
	if title == "" {
		return fallback
	}
	if len(title) > 80 {
		title = title[:80]
	}
	return title
}

// generation is everything runGeneration needs for one turn.
type generation struct {
	chatID   uuid.UUID
	messages []llm.ChatMessage
	model    string
	active   []tools.Tool
	turnCtx  tools.TurnContext
	surface  string
	persist  bool
	onUsage  func(usage llm.Usage, emit func(stream.Event))
}

// runGeneration drives the model stream, the tool loop and finalization,
// emitting wire events on the returned channel. The channel closes when the
// turn is fully finished; ctx must not be tied to the client connection.
func (s *Service) runGeneration(ctx context.Context, g generation) <-chan stream.Event {
	out := make(chan stream.Event, 32)
	go func() {
		defer close(out)
		emit := func(ev stream.Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		g.turnCtx.Notify = func(name string, payload any) {
			emit(dataEvent(name, payload))
		}

		var parts []models.Part
		var respMessages []llm.ChatMessage
		var usage llm.Usage
		decls := tools.Declarations(g.active)
		messages := g.messages
		failed := false

		for round := 0; round < MaxToolRounds; round++ {
			chunker := llm.NewWordChunker(func(word string) {
				emit(textDelta(word))
			})

			result, err := s.provider.CreateChatCompletionStream(ctx, &llm.ChatCompletionRequest{
				Model:    g.model,
				Messages: messages,
				Tools:    decls,
			}, func(chunk *llm.ChatCompletionChunk) error {
				for _, choice := range chunk.Choices {
					if choice.Index != 0 {
						continue
					}
					chunker.Write(choice.Delta.Content)
					if choice.Delta.Reasoning != "" {
						emit(reasoningDelta(choice.Delta.Reasoning))
					}
				}
				return nil
			})
			if err != nil {
				// The response already committed to streaming; errors become
				// fallback content, never an HTTP-level failure.
				failed = true
				metrics.TurnsFailed.WithLabelValues(g.surface).Inc()
				s.logger.Error().Err(err).Str("chat_id", g.chatID.String()).Msg("generation failed mid-stream")
				emit(textDelta(fallbackText))
				emit(errorEvent("generation failed"))
				break
			}
			chunker.Flush()

			usage.Add(result.Usage)
			respMessages = append(respMessages, result.Message)
			if result.Reasoning != "" {
				parts = append(parts, models.Part{Type: models.PartReasoning, Text: result.Reasoning})
			}
			if text, _ := result.Message.Content.(string); text != "" {
				parts = append(parts, models.Part{Type: models.PartText, Text: text})
			}

			if result.FinishReason != "tool_calls" || len(result.Message.ToolCalls) == 0 {
				break
			}

			messages = append(messages, result.Message)
			for _, call := range result.Message.ToolCalls {
				args := json.RawMessage(call.Function.Arguments)
				emit(toolCallEvent(call.ID, call.Function.Name, args))
				metrics.ToolInvocations.WithLabelValues(call.Function.Name).Inc()

				result := s.registry.Invoke(ctx, g.turnCtx, call.Function.Name, args)
				emit(toolResultEvent(call.ID, call.Function.Name, result))

				parts = append(parts,
					models.Part{Type: models.PartToolCall, ToolName: call.Function.Name, ToolCallID: call.ID, Args: args},
					models.Part{Type: models.PartToolResult, ToolName: call.Function.Name, ToolCallID: call.ID, Result: result},
				)
				messages = append(messages, llm.ChatMessage{
					Role:       "tool",
					Content:    string(result),
					ToolCallID: call.ID,
				})
			}
		}

		metrics.TokensUsed.WithLabelValues(g.surface).Add(float64(usage.PromptTokens + usage.CompletionTokens))
		if g.onUsage != nil {
			g.onUsage(usage, emit)
		}

		if g.persist && !failed {
			if _, err := s.finalizer.Finalize(ctx, g.chatID, respMessages, parts); err != nil {
				s.logger.Error().Err(err).Str("chat_id", g.chatID.String()).Msg("turn finalization failed")
				emit(errorEvent("the assistant produced no response"))
			}
		}

		emit(finishEvent(map[string]int{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}))
	}()
	return out
}

// Resume re-attaches to a chat's most recent generation attempt. A nil
// channel with nil error means there is nothing to replay (204-equivalent).
func (s *Service) Resume(ctx context.Context, chatID, userID uuid.UUID) (<-chan stream.Event, error) {
	conv, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load chat", err)
	}
	if conv == nil {
		return nil, chaterr.New(chaterr.KindNotFound, "chat not found")
	}
	if conv.Visibility != models.VisibilityPublic && conv.UserID != userID {
		return nil, chaterr.New(chaterr.KindForbidden, "chat belongs to another user")
	}

	streamID, err := s.store.MostRecentStreamID(ctx, chatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load stream registry", err)
	}
	if streamID == "" {
		metrics.ResumeRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}

	if s.streams == nil {
		return s.synthesizeTail(ctx, chatID)
	}

	attached, err := s.streams.Attach(ctx, streamID)
	if err != nil {
		if !errors.Is(err, stream.ErrUnknownStream) {
			// Broker trouble is fail-open: chat still works, resume degrades
			// to the persisted-tail fallback.
			s.logger.Warn().Err(err).Str("stream_id", streamID).Msg("stream attach failed")
		}
		return s.synthesizeTail(ctx, chatID)
	}

	out := make(chan stream.Event, 32)
	go func() {
		defer close(out)
		first, ok := <-attached
		if !ok {
			return
		}
		// A bare terminal marker means the stream finished before we
		// attached; fall back to the persisted tail within the grace window.
		if first.Type == stream.TypeFinish && len(first.Data) == 0 {
			tail, err := s.synthesizeTail(ctx, chatID)
			if err == nil && tail != nil {
				for ev := range tail {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				return
			}
			select {
			case out <- first:
			case <-ctx.Done():
			}
			return
		}

		metrics.ResumeRequests.WithLabelValues("live").Inc()
		select {
		case out <- first:
		case <-ctx.Done():
			return
		}
		for ev := range attached {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// synthesizeTail covers the race between generation completion and the resume
// request: if the chat's last message is an assistant message persisted within
// the grace window, replay it as a one-shot append; otherwise nothing.
func (s *Service) synthesizeTail(ctx context.Context, chatID uuid.UUID) (<-chan stream.Event, error) {
	last, err := s.store.GetLastMessage(ctx, chatID)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindDatabase, "load last message", err)
	}
	if last == nil || last.Role != models.RoleAssistant || time.Since(last.CreatedAt) > ResumeGrace {
		metrics.ResumeRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}

	metrics.ResumeRequests.WithLabelValues("synthesized").Inc()
	out := make(chan stream.Event, 2)
	out <- dataEvent("append-message", last)
	out <- stream.Terminal()
	close(out)
	return out, nil
}

// Delete removes a chat and everything under it. Owner only, regardless of
// visibility.
func (s *Service) Delete(ctx context.Context, chatID, userID uuid.UUID) error {
	conv, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return chaterr.Wrap(chaterr.KindDatabase, "load chat", err)
	}
	if conv == nil {
		return chaterr.New(chaterr.KindNotFound, "chat not found")
	}
	if conv.UserID != userID {
		return chaterr.New(chaterr.KindForbidden, "chat belongs to another user")
	}
	if err := s.store.DeleteChatByID(ctx, chatID); err != nil {
		return chaterr.Wrap(chaterr.KindDatabase, "delete chat", err)
	}
	return nil
}

// SetVisibility flips the one permitted chat mutation. Owner only.
func (s *Service) SetVisibility(ctx context.Context, chatID, userID uuid.UUID, visibility models.Visibility) error {
	if !visibility.Valid() {
		return chaterr.New(chaterr.KindBadRequest, fmt.Sprintf("unknown visibility %q", visibility))
	}
	conv, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return chaterr.Wrap(chaterr.KindDatabase, "load chat", err)
	}
	if conv == nil {
		return chaterr.New(chaterr.KindNotFound, "chat not found")
	}
	if conv.UserID != userID {
		return chaterr.New(chaterr.KindForbidden, "chat belongs to another user")
	}
	if err := s.store.UpdateChatVisibility(ctx, chatID, visibility); err != nil {
		return chaterr.Wrap(chaterr.KindDatabase, "update visibility", err)
	}
	return nil
}
