package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"docufi/model"
	"docufi/search"
	"docufi/store"
	"docufi/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatConfig() types.Config {
	cfg := types.ConfigFromEnv()
	cfg.TopK = 3
	cfg.HistoryWindow = 10
	return cfg
}

func chatFixture(t *testing.T, llm model.Completer) (*ChatAgent, *store.MemoryStore, types.Document) {
	t.Helper()
	mem := store.NewMemoryStore()
	doc := embeddedDocument(t, mem)
	require.NoError(t, mem.UpsertVectors(context.Background(), doc.VectorNamespace, []store.VectorItem{
		{ID: "rev1", Embedding: []float32{1, 0, 0}, Page: 5, Content: "Total revenue was $5M in 2025"},
	}))

	retriever := search.NewRetriever(unitEmbedder{}, mem)
	return NewChatAgent(chatConfig(), mem, mem, retriever, llm), mem, doc
}

func toolCallReply(query string) model.Completion {
	args, _ := json.Marshal(map[string]string{"query": query})
	return model.Completion{ToolCall: &model.ToolCall{
		ID:        "call_1",
		Name:      "search_document",
		Arguments: args,
	}}
}

func TestChatToolTurnCitesSources(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{
		toolCallReply("total revenue"),
		{Text: "According to page 5, revenue was $5M."},
	}}
	agent, mem, doc := chatFixture(t, llm)

	result, err := agent.Chat(context.Background(), types.ChatParams{
		Message:    "What is the revenue?",
		DocumentID: &doc.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "According to page 5, revenue was $5M.", result.Message.Content)
	assert.Equal(t, []string{"search_document"}, result.Message.ToolCalls)
	require.Len(t, result.Message.SourcesUsed, 1)
	assert.Equal(t, 5, result.Message.SourcesUsed[0].PageNumber)
	assert.Equal(t, "rev1", result.Message.SourcesUsed[0].ChunkID)
	assert.Greater(t, result.Message.SourcesUsed[0].SimilarityScore, 0.0)

	// one retrieval per turn: decision call plus answer call, no more
	assert.Equal(t, 2, llm.calls)

	history, err := mem.SessionHistory(context.Background(), result.Session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, "What is the revenue?", history[0].Content)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, 2, result.Session.MessageCount)
}

func TestChatDirectAnswerSkipsRetrieval(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{
		{Text: "Hello! How can I help with this document?"},
	}}
	agent, _, doc := chatFixture(t, llm)

	result, err := agent.Chat(context.Background(), types.ChatParams{
		Message:    "Hi there",
		DocumentID: &doc.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, llm.calls)
	assert.Empty(t, result.Message.SourcesUsed)
	assert.Empty(t, result.Message.ToolCalls)
}

func TestChatAutoCreatesSession(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{{Text: "ok"}}}
	agent, mem, doc := chatFixture(t, llm)

	result, err := agent.Chat(context.Background(), types.ChatParams{
		Message:    "hello",
		DocumentID: &doc.ID,
	})
	require.NoError(t, err)

	session, err := mem.GetSessionByID(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.Contains(t, session.SessionName, "Chat Session - ")
	assert.True(t, session.DocumentID.Valid)
	assert.Equal(t, doc.ID, session.DocumentID.UUID)
	assert.Equal(t, float32(defaultTemperature), session.Temperature)
	assert.Equal(t, defaultMaxTokens, session.MaxTokens)
}

func TestChatContinuesExistingSession(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{{Text: "first"}, {Text: "second"}}}
	agent, mem, doc := chatFixture(t, llm)

	first, err := agent.Chat(context.Background(), types.ChatParams{Message: "one", DocumentID: &doc.ID})
	require.NoError(t, err)

	second, err := agent.Chat(context.Background(), types.ChatParams{
		Message:   "two",
		SessionID: &first.Session.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	history, err := mem.SessionHistory(context.Background(), first.Session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestChatUnknownSession(t *testing.T) {
	agent, _, _ := chatFixture(t, &scriptedLLM{})
	missing := uuid.New()

	_, err := agent.Chat(context.Background(), types.ChatParams{
		Message:   "hi",
		SessionID: &missing,
	})
	var notFound types.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestChatGenerationFailureKeepsUserMessage(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("model unavailable")}
	agent, mem, doc := chatFixture(t, llm)

	session, err := agent.CreateSession(context.Background(), types.SessionParams{DocumentID: &doc.ID})
	require.NoError(t, err)

	_, err = agent.Chat(context.Background(), types.ChatParams{
		Message:   "What is the revenue?",
		SessionID: &session.ID,
	})
	var genErr types.GenerationError
	require.ErrorAs(t, err, &genErr)

	history, err := mem.SessionHistory(context.Background(), session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1, "the question survives the failed turn")
	assert.Equal(t, types.RoleUser, history[0].Role)
}

func TestCreateSessionOverrides(t *testing.T) {
	agent, _, doc := chatFixture(t, &scriptedLLM{})

	temp := float32(0.2)
	maxTokens := 512
	session, err := agent.CreateSession(context.Background(), types.SessionParams{
		DocumentID:   &doc.ID,
		SessionName:  "analysis",
		Temperature:  &temp,
		MaxTokens:    &maxTokens,
		SystemPrompt: "You are terse.",
	})
	require.NoError(t, err)
	assert.Equal(t, "analysis", session.SessionName)
	assert.Equal(t, temp, session.Temperature)
	assert.Equal(t, maxTokens, session.MaxTokens)
	assert.Equal(t, "You are terse.", session.SystemPrompt)
	assert.False(t, session.CreatedAt.IsZero())
	assert.True(t, session.IsActive)
}

func TestCreateSessionUnknownDocument(t *testing.T) {
	agent, _, _ := chatFixture(t, &scriptedLLM{})
	missing := uuid.New()

	_, err := agent.CreateSession(context.Background(), types.SessionParams{DocumentID: &missing})
	var notFound types.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestChatHistoryWindowLimitsContext(t *testing.T) {
	cfg := chatConfig()
	cfg.HistoryWindow = 2

	mem := store.NewMemoryStore()
	doc := embeddedDocument(t, mem)
	var seen []model.CompletionRequest
	llm := &recordingLLM{reply: "ok", seen: &seen}
	agent := NewChatAgent(cfg, mem, mem, search.NewRetriever(unitEmbedder{}, mem), llm)

	session, err := agent.CreateSession(context.Background(), types.SessionParams{DocumentID: &doc.ID})
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := agent.Chat(context.Background(), types.ChatParams{Message: msg, SessionID: &session.ID})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	last := seen[len(seen)-1]
	// 2 history messages plus the new question
	assert.Len(t, last.Messages, 3)
	assert.Equal(t, "three", last.Messages[len(last.Messages)-1].Content)
}

type recordingLLM struct {
	reply string
	seen  *[]model.CompletionRequest
}

func (r *recordingLLM) Complete(_ context.Context, req model.CompletionRequest) (*model.Completion, error) {
	*r.seen = append(*r.seen, req)
	return &model.Completion{Text: r.reply}, nil
}
