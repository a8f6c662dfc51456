package agent

import (
	"context"
	"testing"

	"docufi/model"
	"docufi/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"bare object":    {`{"a":1}`, `{"a":1}`},
		"bare array":     {`[1,2]`, `[1,2]`},
		"code fence":     {"```json\n{\"a\":1}\n```", `{"a":1}`},
		"prose wrapped":  {`Here is the JSON: {"a":1}. Hope it helps!`, `{"a":1}`},
		"prose and list": {`The questions are: ["q1","q2"]`, `["q1","q2"]`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestCompleteJSONRepairsBadReply(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{
		{Text: "Sure! The analysis is quite interesting."},
		{Text: `{"topic_analysis":"fixed"}`},
	}}

	var out struct {
		TopicAnalysis string `json:"topic_analysis"`
	}
	err := completeJSON(context.Background(), llm, "system", "user", &out)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.TopicAnalysis)
	assert.Equal(t, 2, llm.calls)
}

func TestCompleteJSONGivesUpAfterOneRepair(t *testing.T) {
	llm := &scriptedLLM{replies: []model.Completion{
		{Text: "not json"},
		{Text: "still not json"},
	}}

	var out map[string]any
	err := completeJSON(context.Background(), llm, "system", "user", &out)
	var genErr types.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, llm.calls)
}
