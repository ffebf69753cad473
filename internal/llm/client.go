// Package llm provides the text-generation collaborator used for planning,
// subtask resolution, qualification, copy generation, and context selection.
// Every caller treats a failed call as "use the deterministic fallback";
// nothing in this package is load-bearing for batch correctness.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleteJSON asks the model for a JSON-only reply and unmarshals it into
// out. The raw reply is cleaned of markdown fences and surrounding prose
// before decoding.
func CompleteJSON(ctx context.Context, c Client, systemPrompt, userPrompt string, out any) error {
	sys := systemPrompt
	if sys != "" {
		sys += "\n\n"
	}
	sys += "Respond with a single JSON object only. No markdown, no commentary."

	raw, err := c.CompleteWithSystem(ctx, sys, userPrompt)
	if err != nil {
		return err
	}

	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// ExtractJSON pulls the first JSON object or array out of a model reply,
// tolerating ```json fences and leading/trailing prose. Returns "" when no
// candidate is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip a fenced block if present.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
