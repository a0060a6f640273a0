package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/gate"
	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
	"github.com/agasthyaps/nisa-labs-sub000/internal/tools"
)

// fakeStore is an in-memory DataStore recording the order of mutating calls.
type fakeStore struct {
	mu        sync.Mutex
	chats     map[uuid.UUID]*models.Chat
	messages  map[uuid.UUID][]models.Message
	streamIDs map[uuid.UUID][]string
	votes     map[uuid.UUID][]models.Vote
	saveFails int
	ops       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:     make(map[uuid.UUID]*models.Chat),
		messages:  make(map[uuid.UUID][]models.Message),
		streamIDs: make(map[uuid.UUID][]string),
		votes:     make(map[uuid.UUID][]models.Vote),
	}
}

func (f *fakeStore) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakeStore) Close()                         {}
func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, email, passwordHash string, userType models.UserType) (*models.User, error) {
	return &models.User{ID: uuid.New(), Email: email, Type: userType}, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, token string, userID uuid.UUID, userType models.UserType, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	return nil, nil
}

func (f *fakeStore) SaveChat(ctx context.Context, chat *models.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SaveChat")
	c := *chat
	f.chats[chat.ID] = &c
	return nil
}

func (f *fakeStore) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (f *fakeStore) DeleteChatByID(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteChatByID")
	delete(f.chats, id)
	delete(f.messages, id)
	delete(f.streamIDs, id)
	return nil
}

func (f *fakeStore) UpdateChatVisibility(ctx context.Context, id uuid.UUID, visibility models.Visibility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateChatVisibility")
	if c, ok := f.chats[id]; ok {
		c.Visibility = visibility
	}
	return nil
}

func (f *fakeStore) ListChatsByUserID(ctx context.Context, userID uuid.UUID, limit int, endingBefore *uuid.UUID) ([]models.Chat, error) {
	return nil, nil
}

func (f *fakeStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SaveMessages")
	if f.saveFails > 0 {
		f.saveFails--
		return errors.New("storage unavailable")
	}
	for _, m := range messages {
		f.messages[m.ChatID] = append(f.messages[m.ChatID], m)
	}
	return nil
}

func (f *fakeStore) GetMessagesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeStore) GetLastMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) == 0 {
		return nil, nil
	}
	out := msgs[len(msgs)-1]
	return &out, nil
}

func (f *fakeStore) CreateStreamID(ctx context.Context, streamID string, chatID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateStreamID")
	f.streamIDs[chatID] = append(f.streamIDs[chatID], streamID)
	return nil
}

func (f *fakeStore) GetStreamIDsByChatID(ctx context.Context, chatID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.streamIDs[chatID]...), nil
}

func (f *fakeStore) MostRecentStreamID(ctx context.Context, chatID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.streamIDs[chatID]
	if len(ids) == 0 {
		return "", nil
	}
	return ids[len(ids)-1], nil
}

func (f *fakeStore) GetVotesByChatID(ctx context.Context, chatID uuid.UUID) ([]models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Vote(nil), f.votes[chatID]...), nil
}

func (f *fakeStore) UpsertVote(ctx context.Context, vote *models.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes[vote.ChatID] = append(f.votes[vote.ChatID], *vote)
	return nil
}

func (f *fakeStore) SaveDocument(ctx context.Context, doc *models.Document) error { return nil }
func (f *fakeStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return nil, nil
}

// fakeProvider scripts streaming responses. Each call pops the next script
// entry; completions answer title derivation.
type fakeProvider struct {
	mu      sync.Mutex
	scripts []func(req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.StreamResult, error)
	calls   []*llm.ChatCompletionRequest
	onCall  func()
}

func (p *fakeProvider) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{
		Choices: []llm.ChatChoice{{Message: llm.TextMessage("assistant", "Derived Title")}},
	}, nil
}

func (p *fakeProvider) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.StreamResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	if p.onCall != nil {
		p.onCall()
	}
	if len(p.scripts) == 0 {
		p.mu.Unlock()
		return nil, errors.New("no scripted response")
	}
	script := p.scripts[0]
	p.scripts = p.scripts[1:]
	p.mu.Unlock()
	return script(req, cb)
}

// textScript streams the text in chunks and finishes with the given usage.
func textScript(text string, usage llm.Usage, chunkSize int) func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error) {
	return func(req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.StreamResult, error) {
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			chunk := &llm.ChatCompletionChunk{
				Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{Content: text[i:end]}}},
			}
			if err := cb(chunk); err != nil {
				return nil, err
			}
		}
		return &llm.StreamResult{
			Message:      llm.TextMessage("assistant", text),
			FinishReason: "stop",
			Usage:        usage,
		}, nil
	}
}

func newTestService(t *testing.T, fs *fakeStore, fp *fakeProvider, registry *tools.Registry) *Service {
	t.Helper()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	g := gate.New(gate.Caps{General: 50000, CSV: 100000, Image: 75000})
	mc := ModelConfig{Chat: "test-chat", Reasoning: "test-reasoning", Title: "test-title"}
	return NewService(fs, fp, registry, nil, nil, g, mc, zerolog.Nop())
}

func drainEvents(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func collectText(events []stream.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type != TypeTextDelta {
			continue
		}
		var delta struct {
			Text string `json:"text"`
		}
		json.Unmarshal(ev.Data, &delta)
		b.WriteString(delta.Text)
	}
	return b.String()
}

func userMessage(chatID uuid.UUID, text string) models.Message {
	return models.Message{
		ID:     fmt.Sprintf("01TESTULID%016d", len(text)),
		ChatID: chatID,
		Role:   models.RoleUser,
		Parts:  []models.Part{{Type: models.PartText, Text: text}},
	}
}

func TestStartTurnPersistsUserMessageBeforeModelCall(t *testing.T) {
	fs := newFakeStore()
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript("All good.", llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, 3),
	}}

	chatID := uuid.New()
	userID := uuid.New()
	var persistedAtCall int
	fp.onCall = func() {
		fs.mu.Lock()
		persistedAtCall = len(fs.messages[chatID])
		fs.mu.Unlock()
	}

	svc := newTestService(t, fs, fp, nil)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "hello there"),
		UserID:  userID,
	})
	require.NoError(t, err)
	drainEvents(t, events)

	require.Equal(t, 1, persistedAtCall, "user message must be stored before the model call")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.messages[chatID], 2)
	require.Equal(t, models.RoleUser, fs.messages[chatID][0].Role)
	require.Equal(t, models.RoleAssistant, fs.messages[chatID][1].Role)
	require.Len(t, fs.streamIDs[chatID], 1, "stream id must be recorded")
	require.Equal(t, []string{"SaveChat", "SaveMessages", "CreateStreamID", "SaveMessages"}, fs.ops)
}

func TestStartTurnCreatesChatWithDerivedTitle(t *testing.T) {
	fs := newFakeStore()
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript("ok", llm.Usage{}, 2),
	}}

	chatID := uuid.New()
	svc := newTestService(t, fs, fp, nil)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "help me plan a lesson"),
		UserID:  uuid.New(),
	})
	require.NoError(t, err)
	drainEvents(t, events)

	conv, err := fs.GetChatByID(context.Background(), chatID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "Derived Title", conv.Title)
	require.Equal(t, models.VisibilityPrivate, conv.Visibility)
}

func TestStartTurnForbiddenForOtherUsersChat(t *testing.T) {
	fs := newFakeStore()
	chatID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: uuid.New(), Visibility: models.VisibilityPrivate}

	svc := newTestService(t, fs, &fakeProvider{}, nil)
	_, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "hi"),
		UserID:  uuid.New(),
	})
	require.Error(t, err)
	require.Equal(t, chaterr.KindForbidden, chaterr.KindOf(err))
}

func TestStartTurnStreamsWordChunksAndUsage(t *testing.T) {
	fs := newFakeStore()
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript("The quick brown fox", llm.Usage{PromptTokens: 7, CompletionTokens: 4, TotalTokens: 11}, 3),
	}}

	chatID := uuid.New()
	svc := newTestService(t, fs, fp, nil)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "go"),
		UserID:  uuid.New(),
	})
	require.NoError(t, err)

	got := drainEvents(t, events)
	require.Equal(t, "The quick brown fox", collectText(got))

	last := got[len(got)-1]
	require.Equal(t, stream.TypeFinish, last.Type)
	var finish struct {
		Usage map[string]int `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(last.Data, &finish))
	require.Equal(t, 11, finish.Usage["total_tokens"])
}

func TestToolRoundLoop(t *testing.T) {
	fs := newFakeStore()

	registry := tools.NewRegistry()
	var toolUser uuid.UUID
	registry.MustRegister(tools.Tool{
		Name:        "getWeather",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Invoke: func(ctx context.Context, tc tools.TurnContext, args json.RawMessage) (json.RawMessage, error) {
			toolUser = tc.UserID
			return json.RawMessage(`{"temp":21}`), nil
		},
	})

	toolCallScript := func(req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.StreamResult, error) {
		return &llm.StreamResult{
			Message: llm.ChatMessage{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					ID:   "call-1",
					Type: "function",
					Function: llm.FunctionCall{Name: "getWeather", Arguments: `{"lat":1,"lon":2}`},
				}},
			},
			FinishReason: "tool_calls",
			Usage:        llm.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		}, nil
	}

	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		toolCallScript,
		textScript("It is 21 degrees.", llm.Usage{PromptTokens: 12, CompletionTokens: 6, TotalTokens: 18}, 5),
	}}

	chatID := uuid.New()
	userID := uuid.New()
	svc := newTestService(t, fs, fp, registry)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "weather?"),
		UserID:  userID,
	})
	require.NoError(t, err)
	got := drainEvents(t, events)

	var types []string
	for _, ev := range got {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, TypeToolCall)
	require.Contains(t, types, TypeToolResult)
	require.Equal(t, userID, toolUser, "turn context must carry the user id")

	// The second model call sees the tool result in its history.
	require.Len(t, fp.calls, 2)
	secondCall := fp.calls[1]
	last := secondCall.Messages[len(secondCall.Messages)-1]
	require.Equal(t, "tool", last.Role)
	require.Equal(t, "call-1", last.ToolCallID)

	// One assistant row carrying text and tool parts, usage summed over rounds.
	fs.mu.Lock()
	defer fs.mu.Unlock()
	msgs := fs.messages[chatID]
	require.Len(t, msgs, 2)
	assistant := msgs[1]
	var partTypes []string
	for _, p := range assistant.Parts {
		partTypes = append(partTypes, p.Type)
	}
	require.Contains(t, partTypes, models.PartToolCall)
	require.Contains(t, partTypes, models.PartToolResult)
	require.Contains(t, partTypes, models.PartText)

	lastEv := got[len(got)-1]
	var finish struct {
		Usage map[string]int `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(lastEv.Data, &finish))
	require.Equal(t, 25, finish.Usage["total_tokens"])
}

func TestReasoningModelDisablesTools(t *testing.T) {
	fs := newFakeStore()
	registry := tools.NewRegistry()
	registry.MustRegister(tools.Tool{
		Name: "getWeather",
		Invoke: func(ctx context.Context, tc tools.TurnContext, args json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	})

	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript("thought about it", llm.Usage{}, 4),
	}}

	chatID := uuid.New()
	svc := newTestService(t, fs, fp, registry)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:        chatID,
		Message:       userMessage(chatID, "think hard"),
		SelectedModel: ModelReasoning,
		UserID:        uuid.New(),
	})
	require.NoError(t, err)
	drainEvents(t, events)

	require.Len(t, fp.calls, 1)
	require.Equal(t, "test-reasoning", fp.calls[0].Model)
	require.Nil(t, fp.calls[0].Tools, "reasoning turns must not declare tools")
}

func TestMidStreamErrorBecomesFallbackContent(t *testing.T) {
	fs := newFakeStore()
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		func(req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.StreamResult, error) {
			cb(&llm.ChatCompletionChunk{Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{Content: "partial "}}}})
			return nil, errors.New("provider hiccup")
		},
	}}

	chatID := uuid.New()
	svc := newTestService(t, fs, fp, nil)
	events, err := svc.StartTurn(context.Background(), TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "hello"),
		UserID:  uuid.New(),
	})
	require.NoError(t, err, "a committed stream never turns into an HTTP error")

	got := drainEvents(t, events)
	text := collectText(got)
	require.Contains(t, text, fallbackText)

	var types []string
	for _, ev := range got {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, TypeError)
	require.Equal(t, stream.TypeFinish, got[len(got)-1].Type)

	// Only the user message is stored; the failed turn finalizes nothing.
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.messages[chatID], 1)
}

func TestResumeSynthesizesRecentTail(t *testing.T) {
	fs := newFakeStore()
	chatID := uuid.New()
	userID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: userID, Visibility: models.VisibilityPrivate}
	fs.streamIDs[chatID] = []string{"01STREAM"}
	fs.messages[chatID] = []models.Message{{
		ID:        "01MSG",
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Parts:     []models.Part{{Type: models.PartText, Text: "finished answer"}},
		CreatedAt: time.Now().UTC().Add(-2 * time.Second),
	}}

	svc := newTestService(t, fs, &fakeProvider{}, nil)
	events, err := svc.Resume(context.Background(), chatID, userID)
	require.NoError(t, err)
	require.NotNil(t, events)

	got := drainEvents(t, events)
	require.Len(t, got, 2)
	require.Equal(t, TypeData, got[0].Type)
	var payload struct {
		Name    string         `json:"name"`
		Payload models.Message `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	require.Equal(t, "append-message", payload.Name)
	require.Equal(t, "finished answer", payload.Payload.PlainText())
	require.Equal(t, stream.TypeFinish, got[1].Type)
}

func TestResumeOutsideGraceIsEmpty(t *testing.T) {
	fs := newFakeStore()
	chatID := uuid.New()
	userID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: userID, Visibility: models.VisibilityPrivate}
	fs.streamIDs[chatID] = []string{"01STREAM"}
	fs.messages[chatID] = []models.Message{{
		ID:        "01MSG",
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Parts:     []models.Part{{Type: models.PartText, Text: "old answer"}},
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}}

	svc := newTestService(t, fs, &fakeProvider{}, nil)
	events, err := svc.Resume(context.Background(), chatID, userID)
	require.NoError(t, err)
	require.Nil(t, events, "stale tails are not replayed")
}

func TestResumeNoStreamRecord(t *testing.T) {
	fs := newFakeStore()
	chatID := uuid.New()
	userID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: userID, Visibility: models.VisibilityPrivate}

	svc := newTestService(t, fs, &fakeProvider{}, nil)
	events, err := svc.Resume(context.Background(), chatID, userID)
	require.NoError(t, err)
	require.Nil(t, events)
}

func TestResumeVisibility(t *testing.T) {
	fs := newFakeStore()
	owner := uuid.New()
	other := uuid.New()

	private := uuid.New()
	fs.chats[private] = &models.Chat{ID: private, UserID: owner, Visibility: models.VisibilityPrivate}
	public := uuid.New()
	fs.chats[public] = &models.Chat{ID: public, UserID: owner, Visibility: models.VisibilityPublic}

	svc := newTestService(t, fs, &fakeProvider{}, nil)

	_, err := svc.Resume(context.Background(), private, other)
	require.Equal(t, chaterr.KindForbidden, chaterr.KindOf(err))

	_, err = svc.Resume(context.Background(), public, other)
	require.NoError(t, err, "public chats are readable by any authenticated user")

	_, err = svc.Resume(context.Background(), uuid.New(), other)
	require.Equal(t, chaterr.KindNotFound, chaterr.KindOf(err))
}

func TestDeleteOwnerOnly(t *testing.T) {
	fs := newFakeStore()
	owner := uuid.New()
	chatID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: owner, Visibility: models.VisibilityPublic}

	svc := newTestService(t, fs, &fakeProvider{}, nil)

	err := svc.Delete(context.Background(), chatID, uuid.New())
	require.Equal(t, chaterr.KindForbidden, chaterr.KindOf(err), "public visibility never grants delete")

	require.NoError(t, svc.Delete(context.Background(), chatID, owner))
	conv, _ := fs.GetChatByID(context.Background(), chatID)
	require.Nil(t, conv)
}

func TestSetVisibility(t *testing.T) {
	fs := newFakeStore()
	owner := uuid.New()
	chatID := uuid.New()
	fs.chats[chatID] = &models.Chat{ID: chatID, UserID: owner, Visibility: models.VisibilityPrivate}

	svc := newTestService(t, fs, &fakeProvider{}, nil)

	err := svc.SetVisibility(context.Background(), chatID, owner, "friends-only")
	require.Equal(t, chaterr.KindBadRequest, chaterr.KindOf(err))

	require.NoError(t, svc.SetVisibility(context.Background(), chatID, owner, models.VisibilityPublic))
	conv, _ := fs.GetChatByID(context.Background(), chatID)
	require.Equal(t, models.VisibilityPublic, conv.Visibility)
}

func TestEmbedTurnNoPersistence(t *testing.T) {
	fs := newFakeStore()
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript("embed reply", llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, 4),
	}}

	svc := newTestService(t, fs, fp, nil)
	events := svc.EmbedTurn(context.Background(), EmbedInput{
		ConversationID: "widget-1",
		Mode:           "general",
		Messages:       []EmbedMessage{{Role: "user", Content: "hi"}},
	})
	got := drainEvents(t, events)

	require.Equal(t, "embed reply", collectText(got))
	require.Empty(t, fs.ops, "the embedded surface must not touch storage")

	var usage *gate.Decision
	for _, ev := range got {
		if ev.Type != TypeData {
			continue
		}
		var payload struct {
			Name    string        `json:"name"`
			Payload gate.Decision `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		if payload.Name == "token-usage" {
			usage = &payload.Payload
		}
	}
	require.NotNil(t, usage, "embed turns must emit a token-usage event")
	require.Equal(t, 150, usage.Used)

	// The gate remembers the turn for the next pre-check.
	d := svc.Gate().Check("widget-1", "general")
	require.Equal(t, 150, d.Used)
}

func TestDisconnectedClientStillGetsAnswerPersisted(t *testing.T) {
	// One-shot mode, client walks away mid-stream: the producer must run to
	// completion so the assistant message still lands in storage.
	fs := newFakeStore()
	longAnswer := strings.TrimSpace(strings.Repeat("word ", 300))
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript(longAnswer, llm.Usage{PromptTokens: 10, CompletionTokens: 300, TotalTokens: 310}, 7),
	}}

	chatID := uuid.New()
	svc := newTestService(t, fs, fp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := svc.StartTurn(ctx, TurnInput{
		ChatID:  chatID,
		Message: userMessage(chatID, "tell me everything"),
		UserID:  uuid.New(),
	})
	require.NoError(t, err)

	// Read one event, then disconnect without draining the rest.
	<-events
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		fs.mu.Lock()
		n := len(fs.messages[chatID])
		fs.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("assistant message was not persisted after client disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assistant := fs.messages[chatID][1]
	require.Equal(t, models.RoleAssistant, assistant.Role)
	require.Equal(t, longAnswer, assistant.PlainText())
}

func TestEmbedDisconnectStillCountsUsage(t *testing.T) {
	fs := newFakeStore()
	longAnswer := strings.TrimSpace(strings.Repeat("word ", 300))
	fp := &fakeProvider{scripts: []func(*llm.ChatCompletionRequest, llm.StreamCallback) (*llm.StreamResult, error){
		textScript(longAnswer, llm.Usage{PromptTokens: 100, CompletionTokens: 300, TotalTokens: 400}, 7),
	}}

	svc := newTestService(t, fs, fp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.EmbedTurn(ctx, EmbedInput{
		ConversationID: "widget-gone",
		Mode:           "general",
		Messages:       []EmbedMessage{{Role: "user", Content: "hi"}},
	})

	<-events
	cancel()

	// The gate still records the full turn even though nobody is reading.
	deadline := time.After(2 * time.Second)
	for svc.Gate().Check("widget-gone", "general").Used != 400 {
		select {
		case <-deadline:
			t.Fatal("token usage was not recorded after client disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBudgetExceededStream(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeProvider{}, nil)

	decision := gate.Decision{Allowed: false, Used: 50200, Cap: 50000}
	got := drainEvents(t, svc.BudgetExceeded("general", decision))

	require.Len(t, got, 3)
	require.Equal(t, TypeTextDelta, got[0].Type)
	require.Contains(t, collectText(got), "token limit")
	require.Equal(t, TypeData, got[1].Type)
	require.Equal(t, stream.TypeFinish, got[2].Type)
}
