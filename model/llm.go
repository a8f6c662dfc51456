package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"docufi/types"
)

// Message is one chat turn sent to the language model. ToolCalls is set
// on assistant messages that requested a tool; ToolCallID ties a tool
// result back to that request.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// Tool describes a function the model may ask to invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is the model's request to run a tool before answering.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Completion is either a final text answer or a tool invocation request.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float32
	MaxTokens   int
}

// Completer is the language-generation collaborator used by the research
// orchestrator and the chat agent.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
// Transient failures (5xx, 429) are retried with exponential backoff;
// everything else surfaces as a GenerationError.
type OpenAIClient struct {
	apiURL     string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
}

func NewOpenAIClient(timeout time.Duration) *OpenAIClient {
	apiURL := os.Getenv("LLM_URL")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/chat/completions"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiURL:     apiURL,
		apiKey:     os.Getenv("OPENAI_API_KEY"),
		model:      model,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

type chatCompletionMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCallObject `json:"tool_calls,omitempty"`
}

type chatToolCallObject struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatToolObject struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Tools       []chatToolObject        `json:"tools,omitempty"`
	Temperature float32                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, types.GenerationError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, types.GenerationError{Err: ctx.Err()}
			case <-time.After(retryDelay(attempt)):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
		if err != nil {
			return nil, types.GenerationError{Err: err}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("LLM API error: status %d, body: %s", resp.StatusCode, string(respBody))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, types.GenerationError{Err: fmt.Errorf("LLM API error: status %d, body: %s", resp.StatusCode, string(respBody))}
		}

		var out chatCompletionResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, types.GenerationError{Err: fmt.Errorf("decode response: %w", err)}
		}
		if len(out.Choices) == 0 {
			return nil, types.GenerationError{Err: fmt.Errorf("no choices returned")}
		}

		msg := out.Choices[0].Message
		if len(msg.ToolCalls) > 0 {
			tc := msg.ToolCalls[0]
			return &Completion{ToolCall: &ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			}}, nil
		}
		return &Completion{Text: msg.Content}, nil
	}

	return nil, types.GenerationError{Err: fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)}
}

func (c *OpenAIClient) buildRequest(req CompletionRequest) chatCompletionRequest {
	out := chatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, chatCompletionMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cm := chatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var o chatToolCallObject
			o.ID = tc.ID
			o.Type = "function"
			o.Function.Name = tc.Name
			o.Function.Arguments = string(tc.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, o)
		}
		out.Messages = append(out.Messages, cm)
	}
	for _, t := range req.Tools {
		var to chatToolObject
		to.Type = "function"
		to.Function.Name = t.Name
		to.Function.Description = t.Description
		to.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, to)
	}
	return out
}

func retryDelay(attempt int) time.Duration {
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
