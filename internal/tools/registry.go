// Package tools provides the fetch-operation registry and the data-fetch
// adapters behind it. The registry is an explicit constructed object handed to
// the executor; there is no process-wide ambient tool table.
package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"prospector/internal/types"
)

// Fetcher is one data-gathering call. Failures are reported in-band as
// {"error": message} payloads, never as Go errors, so a bad fetch can be
// persisted and surfaced to aggregation like any other result.
type Fetcher func(ctx context.Context, args map[string]any) map[string]any

// Scope says which kind of research task an operation belongs to.
type Scope string

const (
	ScopeLead    Scope = "lead"
	ScopeCompany Scope = "company"
)

// Param documents one operation argument for the planning prompt.
type Param struct {
	Name        string
	Type        string
	Description string
}

// Operation is one registered fetch operation.
type Operation struct {
	Name        string
	Description string
	Scope       Scope
	Params      []Param
	Fetch       Fetcher
}

// Registry maps operation names to fetchers, preserving registration order.
type Registry struct {
	ops    []Operation
	byName map[string]*Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Operation)}
}

// Register adds an operation. Duplicate names are rejected.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Fetch == nil {
		return fmt.Errorf("operation %s has no fetcher", op.Name)
	}
	if _, exists := r.byName[op.Name]; exists {
		return fmt.Errorf("operation %s already registered", op.Name)
	}
	r.ops = append(r.ops, op)
	r.byName[op.Name] = &r.ops[len(r.ops)-1]
	return nil
}

// Get looks up an operation by name.
func (r *Registry) Get(name string) (Operation, bool) {
	op, ok := r.byName[name]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Operations returns all operations in registration order.
func (r *Registry) Operations() []Operation {
	out := make([]Operation, len(r.ops))
	copy(out, r.ops)
	return out
}

// OperationsForScope returns the operations for one scope, in order.
func (r *Registry) OperationsForScope(scope Scope) []Operation {
	var out []Operation
	for _, op := range r.ops {
		if op.Scope == scope {
			out = append(out, op)
		}
	}
	return out
}

// SchemaText renders the registry as prompt text for the planning and
// resolution collaborators.
func (r *Registry) SchemaText() string {
	var b strings.Builder
	for i, op := range r.ops {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s\nParameters:", op.Name, op.Description)
		for _, p := range op.Params {
			fmt.Fprintf(&b, "\n  - %s: %s - %s", p.Name, p.Type, p.Description)
		}
	}
	return b.String()
}

// Resolve deterministically maps a subtask description to one operation call.
// It is the fallback when the resolution collaborator is unavailable or
// returns nothing usable. Lead may be nil for company tasks.
func (r *Registry) Resolve(desc string, task types.Task, lead *types.Lead) (string, map[string]any, bool) {
	d := strings.ToLower(desc)

	if task.Kind == types.TaskCompanyResearch {
		if task.Company == "" {
			return "", nil, false
		}
		args := map[string]any{"company_name": task.Company}
		switch {
		case strings.Contains(d, "funding"):
			return r.resolved("get_company_funding", args)
		case strings.Contains(d, "news"):
			return r.resolved("get_company_news", args)
		case strings.Contains(d, "post") || strings.Contains(d, "update"):
			return r.resolved("get_company_posts", args)
		default:
			return r.resolved("get_linkedin_company", args)
		}
	}

	if lead == nil || lead.LinkedInURL == "" {
		return "", nil, false
	}
	args := map[string]any{"linkedin_url": lead.LinkedInURL}
	if strings.Contains(d, "activity") || strings.Contains(d, "post") {
		return r.resolved("get_linkedin_activity", args)
	}
	return r.resolved("get_linkedin_profile", args)
}

func (r *Registry) resolved(name string, args map[string]any) (string, map[string]any, bool) {
	if _, ok := r.byName[name]; !ok {
		return "", nil, false
	}
	return name, args, true
}

// ErrorPayload builds the in-band failure marker for a fetch.
func ErrorPayload(format string, a ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, a...)}
}

// IsErrorPayload reports whether a fetch payload is an error marker.
func IsErrorPayload(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := m["error"]
	if !ok {
		return "", false
	}
	s, _ := msg.(string)
	return s, true
}

// NewDefaultRegistry wires the shipped LinkedIn and company-news adapters.
func NewDefaultRegistry(rapidAPIKey string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	li := newLinkedInClient(rapidAPIKey, logger)
	news := newNewsClient(logger)

	r := NewRegistry()
	register := func(op Operation) {
		// Names are compile-time constants here, so Register cannot fail.
		if err := r.Register(op); err != nil {
			logger.Error("failed to register operation", zap.String("op", op.Name), zap.Error(err))
		}
	}

	register(Operation{
		Name:        "get_linkedin_profile",
		Description: "Fetches LinkedIn profile data including headline, summary, experience, education, and skills.",
		Scope:       ScopeLead,
		Params: []Param{
			{Name: "linkedin_url", Type: "string", Description: "LinkedIn profile URL to fetch"},
		},
		Fetch: li.fetchProfile,
	})
	register(Operation{
		Name:        "get_linkedin_activity",
		Description: "Fetches recent LinkedIn posts and activity for a profile.",
		Scope:       ScopeLead,
		Params: []Param{
			{Name: "linkedin_url", Type: "string", Description: "LinkedIn profile URL"},
			{Name: "limit", Type: "int", Description: "Number of recent posts to fetch"},
		},
		Fetch: li.fetchActivity,
	})
	register(Operation{
		Name:        "get_linkedin_company",
		Description: "Fetches LinkedIn company page data including description, size, industry, and headquarters.",
		Scope:       ScopeCompany,
		Params: []Param{
			{Name: "company_name", Type: "string", Description: "Company name to look up"},
		},
		Fetch: li.fetchCompany,
	})
	register(Operation{
		Name:        "get_company_posts",
		Description: "Fetches recent posts from a company's LinkedIn page.",
		Scope:       ScopeCompany,
		Params: []Param{
			{Name: "company_name", Type: "string", Description: "Company name to look up"},
		},
		Fetch: li.fetchCompanyPosts,
	})
	register(Operation{
		Name:        "get_company_news",
		Description: "Fetches recent news articles about a company.",
		Scope:       ScopeCompany,
		Params: []Param{
			{Name: "company_name", Type: "string", Description: "Company name to search for"},
			{Name: "limit", Type: "int", Description: "Number of articles to fetch"},
		},
		Fetch: news.fetchNews,
	})
	register(Operation{
		Name:        "get_company_funding",
		Description: "Fetches company funding information including total raised and funding rounds.",
		Scope:       ScopeCompany,
		Params: []Param{
			{Name: "company_name", Type: "string", Description: "Company name to search for"},
		},
		Fetch: news.fetchFunding,
	})
	return r
}
