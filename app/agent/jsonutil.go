package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docufi/model"
	"docufi/types"
)

// completeJSON asks the model for structured output and unmarshals it
// into out. A reply that fails to parse gets exactly one repair round.
func completeJSON(ctx context.Context, llm model.Completer, system, user string, out any) error {
	resp, err := llm.Complete(ctx, model.CompletionRequest{
		System:      system,
		Messages:    []model.Message{{Role: "user", Content: user}},
		Temperature: 0.2,
		MaxTokens:   2000,
	})
	if err != nil {
		return err
	}

	parseErr := json.Unmarshal([]byte(extractJSON(resp.Text)), out)
	if parseErr == nil {
		return nil
	}

	resp, err = llm.Complete(ctx, model.CompletionRequest{
		System: system,
		Messages: []model.Message{
			{Role: "user", Content: user},
			{Role: "assistant", Content: resp.Text},
			{Role: "user", Content: fmt.Sprintf(repairPrompt, resp.Text, parseErr)},
		},
		Temperature: 0,
		MaxTokens:   2000,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), out); err != nil {
		return types.GenerationError{Err: fmt.Errorf("unparseable model output: %w", err)}
	}
	return nil
}

// extractJSON strips prose and code fences around the outermost JSON
// value in a model reply.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i != -1 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j != -1 {
			s = s[:j]
		}
	}
	objStart := strings.IndexAny(s, "{[")
	if objStart == -1 {
		return s
	}
	closer := byte('}')
	if s[objStart] == '[' {
		closer = ']'
	}
	objEnd := strings.LastIndexByte(s, closer)
	if objEnd < objStart {
		return s
	}
	return s[objStart : objEnd+1]
}
