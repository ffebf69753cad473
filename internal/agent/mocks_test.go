package agent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"prospector/internal/contextstore"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// mockLLM implements llm.Client for testing.
type mockLLM struct {
	completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	mu           sync.Mutex
	calls        int
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.completeFunc != nil {
		return m.completeFunc(ctx, systemPrompt, userPrompt)
	}
	return "", nil
}

// testLeads is the canonical three-lead, two-company batch.
func testLeads() []types.Lead {
	return []types.Lead{
		{ID: "a", Name: "Alice Ames", LinkedInURL: "https://linkedin.com/in/alice", CompanyName: "Acme", Title: "CTO"},
		{ID: "b", Name: "Bob Burns", LinkedInURL: "https://linkedin.com/in/bob", CompanyName: "Acme", Title: "VP Eng"},
		{ID: "c", Name: "Carol Cole", LinkedInURL: "https://linkedin.com/in/carol", CompanyName: "Widgets", Title: "CIO"},
	}
}

// stubRegistry returns a registry whose fetchers all succeed with fixed
// payloads. failOps names operations that return error payloads instead.
func stubRegistry(failOps ...string) *tools.Registry {
	failing := make(map[string]bool)
	for _, op := range failOps {
		failing[op] = true
	}

	r := tools.NewRegistry()
	add := func(name string, scope tools.Scope, payload map[string]any) {
		_ = r.Register(tools.Operation{
			Name:        name,
			Description: name,
			Scope:       scope,
			Fetch: func(ctx context.Context, args map[string]any) map[string]any {
				if failing[name] {
					return tools.ErrorPayload("%s unavailable", name)
				}
				return payload
			},
		})
	}

	add("get_linkedin_profile", tools.ScopeLead, map[string]any{
		"headline": "Engineering leader",
		"experience": []any{
			map[string]any{"title": "CTO", "company": "Acme", "duration": "3 yrs"},
		},
		"skills": []any{"Go", "Kubernetes"},
	})
	add("get_linkedin_activity", tools.ScopeLead, map[string]any{
		"posts": []any{
			map[string]any{"text": "Thoughts on platform engineering", "date": "2024-01-10"},
		},
	})
	add("get_linkedin_company", tools.ScopeCompany, map[string]any{
		"name": "Acme", "industry": "Software", "company_size": "51-200 employees",
	})
	add("get_company_posts", tools.ScopeCompany, map[string]any{
		"posts": []any{map[string]any{"text": "We are hiring", "date": "2024-01-12"}},
	})
	add("get_company_news", tools.ScopeCompany, map[string]any{
		"articles": []any{map[string]any{"title": "Acme raises Series B", "source": "TechCrunch"}},
	})
	add("get_company_funding", tools.ScopeCompany, map[string]any{
		"total_funding": "$75M",
	})
	return r
}

// newTestStore creates a context store rooted in a temp dir.
func newTestStore(dir string) (*contextstore.Store, error) {
	return contextstore.New(dir, nil, zap.NewNop())
}
