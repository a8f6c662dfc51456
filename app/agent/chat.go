package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"docufi/model"
	"docufi/search"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/google/uuid"
)

// turnState tracks one conversational turn. A turn makes at most one
// retrieval: after the tool result is fed back, the model must answer.
type turnState int

const (
	turnAwaitingDecision turnState = iota
	turnToolInvoked
	turnAnswering
	turnDone
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

var searchTool = model.Tool{
	Name:        "search_document",
	Description: "Search the financial document for passages relevant to a query. Use before answering any question about document content.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to search for in the document"}
		},
		"required": ["query"]
	}`),
}

// ChatAgent answers conversational questions over embedded documents.
// Turns within a session are serialized so history stays coherent.
type ChatAgent struct {
	logger    *slog.Logger
	cfg       types.Config
	docs      store.DocumentStorer
	sessions  store.SessionStorer
	retriever *search.Retriever
	llm       model.Completer
	locks     *worker.KeyedMutex
}

func NewChatAgent(
	cfg types.Config,
	docs store.DocumentStorer,
	sessions store.SessionStorer,
	retriever *search.Retriever,
	llm model.Completer,
) *ChatAgent {
	return &ChatAgent{
		logger:    slog.Default(),
		cfg:       cfg,
		docs:      docs,
		sessions:  sessions,
		retriever: retriever,
		llm:       llm,
		locks:     worker.NewKeyedMutex(),
	}
}

// ChatResult is a completed turn: the persisted assistant message plus
// the session it belongs to.
type ChatResult struct {
	Session *types.ChatSession
	Message *types.ChatMessage
}

// CreateSession records a new chat session. A referenced document must
// exist but does not have to be embedded yet.
func (a *ChatAgent) CreateSession(ctx context.Context, params types.SessionParams) (*types.ChatSession, error) {
	var docID uuid.NullUUID
	if params.DocumentID != nil {
		if _, err := a.docs.GetDocumentByID(ctx, *params.DocumentID); err != nil {
			return nil, err
		}
		docID = uuid.NullUUID{UUID: *params.DocumentID, Valid: true}
	}

	now := time.Now().UTC()
	s := types.ChatSession{
		ID:           uuid.New(),
		DocumentID:   docID,
		SessionName:  params.SessionName,
		IsActive:     true,
		Temperature:  defaultTemperature,
		MaxTokens:    defaultMaxTokens,
		SystemPrompt: params.SystemPrompt,
		CreatedAt:    now,
		LastActivity: now,
	}
	if s.SessionName == "" {
		s.SessionName = "Chat Session - " + now.Format("2006-01-02 15:04:05")
	}
	if params.Temperature != nil {
		s.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		s.MaxTokens = *params.MaxTokens
	}

	if err := a.sessions.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Chat runs one turn. Without a session id a session is created on the
// fly. The user message is persisted even when generation fails, so the
// user can retry without losing their question.
func (a *ChatAgent) Chat(ctx context.Context, params types.ChatParams) (*ChatResult, error) {
	session, err := a.resolveSession(ctx, params)
	if err != nil {
		return nil, err
	}

	a.locks.Lock(session.ID.String())
	defer a.locks.Unlock(session.ID.String())

	history, err := a.sessions.SessionHistory(ctx, session.ID, a.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}

	userMsg := types.ChatMessage{
		ID:         uuid.New(),
		SessionID:  session.ID,
		Role:       types.RoleUser,
		Content:    params.Message,
		TokenCount: model.CountTokens(params.Message),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := a.sessions.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	answer, sources, toolCalls, err := a.runTurn(ctx, session, history, params.Message)
	if err != nil {
		// the user message stays recorded, the failed turn produced no answer
		return nil, err
	}

	assistantMsg := types.ChatMessage{
		ID:          uuid.New(),
		SessionID:   session.ID,
		Role:        types.RoleAssistant,
		Content:     answer,
		TokenCount:  model.CountTokens(answer),
		SourcesUsed: messageSources(sources),
		ToolCalls:   toolCalls,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := a.sessions.AppendMessage(ctx, assistantMsg)
	if err != nil {
		return nil, err
	}

	session, err = a.sessions.GetSessionByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Session: session, Message: saved}, nil
}

func (a *ChatAgent) resolveSession(ctx context.Context, params types.ChatParams) (*types.ChatSession, error) {
	if params.SessionID != nil {
		return a.sessions.GetSessionByID(ctx, *params.SessionID)
	}
	return a.CreateSession(ctx, types.SessionParams{DocumentID: params.DocumentID})
}

func (a *ChatAgent) runTurn(
	ctx context.Context,
	session *types.ChatSession,
	history []types.ChatMessage,
	question string,
) (answer string, sources []types.SearchResult, toolCalls []string, err error) {
	system := session.SystemPrompt
	if system == "" {
		system = financialAnalystPrompt
	}

	messages := historyMessages(history)
	messages = append(messages, model.Message{Role: "user", Content: question})

	state := turnAwaitingDecision
	for state != turnDone {
		switch state {
		case turnAwaitingDecision:
			resp, cerr := a.llm.Complete(ctx, model.CompletionRequest{
				System:      system,
				Messages:    messages,
				Tools:       []model.Tool{searchTool},
				Temperature: session.Temperature,
				MaxTokens:   session.MaxTokens,
			})
			if cerr != nil {
				return "", nil, nil, cerr
			}
			if resp.ToolCall == nil {
				answer = resp.Text
				state = turnDone
				break
			}

			query := toolQuery(*resp.ToolCall, question)
			toolCalls = append(toolCalls, searchTool.Name)
			sources, err = a.retriever.Search(ctx, query, session.DocumentID, a.cfg.TopK)
			if err != nil {
				return "", nil, nil, err
			}

			messages = append(messages,
				model.Message{Role: "assistant", ToolCalls: []model.ToolCall{*resp.ToolCall}},
				model.Message{
					Role:       "tool",
					ToolCallID: resp.ToolCall.ID,
					Content:    fmt.Sprintf(toolResultTemplate, searchContext(sources)),
				},
			)
			state = turnToolInvoked

		case turnToolInvoked:
			state = turnAnswering

		case turnAnswering:
			// no tools offered: the single retrieval for this turn is spent
			resp, cerr := a.llm.Complete(ctx, model.CompletionRequest{
				System:      system,
				Messages:    messages,
				Temperature: session.Temperature,
				MaxTokens:   session.MaxTokens,
			})
			if cerr != nil {
				return "", nil, nil, cerr
			}
			answer = resp.Text
			state = turnDone
		}
	}
	return answer, sources, toolCalls, nil
}

func toolQuery(call model.ToolCall, fallback string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args.Query == "" {
		return fallback
	}
	return args.Query
}

func historyMessages(history []types.ChatMessage) []model.Message {
	messages := make([]model.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, model.Message{Role: string(m.Role), Content: m.Content})
	}
	return messages
}

func searchContext(results []types.SearchResult) string {
	if len(results) == 0 {
		return "No relevant passages were found in the document."
	}
	var b []byte
	for _, r := range results {
		b = fmt.Appendf(b, "(page %d, relevance %.2f)\n%s\n\n", r.Page, r.RelevanceScore, r.Content)
	}
	return string(b)
}

func messageSources(results []types.SearchResult) []types.MessageSource {
	if len(results) == 0 {
		return nil
	}
	sources := make([]types.MessageSource, 0, len(results))
	for _, r := range results {
		sources = append(sources, types.MessageSource{
			ChunkID:         r.ChunkID,
			PageNumber:      r.Page,
			SimilarityScore: r.RelevanceScore,
			Preview:         r.Preview(),
		})
	}
	return sources
}
