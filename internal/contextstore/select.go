package contextstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"prospector/internal/llm"
)

const selectSystemPrompt = `You are a context selection agent.
Your job is to identify which tool outputs are relevant for answering a query.
Select only the outputs that are necessary - avoid selecting irrelevant data.`

// selectedContexts is the expected collaborator reply shape.
type selectedContexts struct {
	ContextIDs []int `json:"context_ids"`
}

// SelectRelevant asks the relevance collaborator to narrow a pointer set down
// to the records that matter for the query, returning their addresses. Any
// collaborator failure (no selector configured, call error, malformed reply)
// returns the full candidate set rather than silently dropping data.
func (s *Store) SelectRelevant(ctx context.Context, query string, candidates []Pointer) []string {
	all := make([]string, len(candidates))
	for i, p := range candidates {
		all[i] = p.Address
	}
	if len(candidates) == 0 || s.selector == nil {
		return all
	}

	type pointerInfo struct {
		ID          int            `json:"id"`
		Operation   string         `json:"tool_name"`
		Description string         `json:"tool_description"`
		Args        map[string]any `json:"args"`
	}
	infos := make([]pointerInfo, len(candidates))
	for i, p := range candidates {
		infos[i] = pointerInfo{ID: i, Operation: p.Operation, Description: p.Description, Args: p.Args}
	}
	infoJSON, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return all
	}

	prompt := fmt.Sprintf(`Original query: %q

Available tool outputs:
%s

Select which tool outputs are relevant for answering the query.
Return a JSON object with a "context_ids" field containing the 0-indexed IDs of the relevant outputs.`, query, infoJSON)

	var selected selectedContexts
	if err := llm.CompleteJSON(ctx, s.selector, selectSystemPrompt, prompt, &selected); err != nil {
		s.logger.Warn("context selection failed, using all candidates", zap.Error(err))
		return all
	}

	var out []string
	for _, id := range selected.ContextIDs {
		if id >= 0 && id < len(candidates) {
			out = append(out, candidates[id].Address)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}
