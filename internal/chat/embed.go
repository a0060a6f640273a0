package chat

import (
	"context"

	"github.com/agasthyaps/nisa-labs-sub000/internal/gate"
	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/metrics"
	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
)

// EmbedMessage is one message of the embedded widget's stateless history. The
// embed resends its full short-lived message array each turn; there is no
// durable account behind it.
type EmbedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbedInput is one validated mini-chat turn.
type EmbedInput struct {
	ConversationID string
	Mode           string
	Messages       []EmbedMessage
}

// EmbedTurn streams one embedded turn. No tools, no persistence, no resume;
// token usage feeds the budget gate and a token-usage data event so the embed
// UI can self-limit.
func (s *Service) EmbedTurn(ctx context.Context, in EmbedInput) <-chan stream.Event {
	messages := make([]llm.ChatMessage, 0, len(in.Messages)+1)
	messages = append(messages, llm.TextMessage("system", prompts.EmbedSystem(in.Mode)))
	for _, m := range in.Messages {
		messages = append(messages, llm.TextMessage(m.Role, m.Content))
	}

	metrics.TurnsStarted.WithLabelValues("embed").Inc()

	return oneShot(ctx, func(pctx context.Context) <-chan stream.Event {
		return s.runGeneration(pctx, generation{
			messages: messages,
			model:    s.models.Chat,
			surface:  "embed",
			onUsage: func(usage llm.Usage, emit func(stream.Event)) {
				decision := s.gate.Increment(in.ConversationID, in.Mode, usage.PromptTokens+usage.CompletionTokens)
				emit(dataEvent("token-usage", decision))
			},
		})
	})
}

// budgetExceededText is the fixed user-facing message for a rejected embedded
// turn. Rejection is not an error.
const budgetExceededText = "This demo conversation has reached its token limit. Start a new conversation to keep exploring."

// BudgetExceeded returns the one-shot stream served when the pre-turn gate
// check rejects an embedded conversation.
func (s *Service) BudgetExceeded(mode string, decision gate.Decision) <-chan stream.Event {
	metrics.GateRejections.WithLabelValues(mode).Inc()
	out := make(chan stream.Event, 3)
	out <- textDelta(budgetExceededText)
	out <- dataEvent("token-usage", decision)
	out <- stream.Terminal()
	close(out)
	return out
}
