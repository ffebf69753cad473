package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClient struct {
	reply string
	err   error
	sys   string
}

func (c *fixedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.reply, c.err
}

func (c *fixedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.sys = systemPrompt
	return c.reply, c.err
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"bare array", `[1, 2]`, `[1, 2]`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced uppercase", "```JSON\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", `Sure, here you go: {"a": 1}`, `{"a": 1}`},
		{"trailing prose", `{"a": 1} Hope that helps!`, `{"a": 1}`},
		{"nested objects", `{"a": {"b": {"c": 1}}}`, `{"a": {"b": {"c": 1}}}`},
		{"braces in strings", `{"a": "closing } brace"}`, `{"a": "closing } brace"}`},
		{"escaped quotes", `{"a": "she said \"}\""}`, `{"a": "she said \"}\""}`},
		{"no json", "I cannot answer that.", ""},
		{"unterminated", `{"a": 1`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestCompleteJSON(t *testing.T) {
	client := &fixedClient{reply: "Here is the plan:\n```json\n{\"score\": 72}\n```"}
	var out struct {
		Score int `json:"score"`
	}
	require.NoError(t, CompleteJSON(context.Background(), client, "you are a scorer", "score this", &out))
	assert.Equal(t, 72, out.Score)
	assert.Contains(t, client.sys, "you are a scorer")
	assert.Contains(t, client.sys, "single JSON object only")
}

func TestCompleteJSON_Faults(t *testing.T) {
	var out map[string]any

	err := CompleteJSON(context.Background(), &fixedClient{err: fmt.Errorf("boom")}, "", "q", &out)
	assert.ErrorContains(t, err, "boom")

	err = CompleteJSON(context.Background(), &fixedClient{reply: "no json here"}, "", "q", &out)
	assert.ErrorContains(t, err, "no JSON object")

	err = CompleteJSON(context.Background(), &fixedClient{reply: `{"a": }`}, "", "q", &out)
	assert.Error(t, err)
}
