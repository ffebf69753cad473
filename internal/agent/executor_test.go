package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prospector/internal/contextstore"
	"prospector/internal/tools"
	"prospector/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func executeDeterministic(t *testing.T, registry *tools.Registry, leads []types.Lead) (*contextstore.Store, []types.TaskReport) {
	t.Helper()
	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)

	planner := NewPlanner(nil, registry, nil)
	plan := planner.PlanResearch(context.Background(), leads, "campaign")

	executor := NewExecutor(registry, store, nil, nil)
	reports, err := executor.ExecuteResearch(context.Background(), plan, leads, TaskCallback{})
	require.NoError(t, err)
	return store, reports
}

func TestExecuteResearch_PersistsAllResults(t *testing.T) {
	leads := testLeads()
	store, reports := executeDeterministic(t, stubRegistry(), leads)

	for _, r := range reports {
		assert.True(t, r.OK, "task %d: %s", r.TaskID, r.Error)
	}

	// Each lead gets its two profile-scoped records.
	for _, lead := range leads {
		ptrs := store.PointersForLead(lead.ID)
		assert.Len(t, ptrs, 2, "lead %s", lead.ID)
	}
	// Each company gets its four company-scoped records, written once even
	// though Acme has two member leads.
	assert.Len(t, store.PointersForCompany("Acme"), 4)
	assert.Len(t, store.PointersForCompany("Widgets"), 4)
}

func TestExecuteResearch_FetchFailureIsContained(t *testing.T) {
	leads := testLeads()
	store, reports := executeDeterministic(t, stubRegistry("get_linkedin_profile"), leads)

	// A failing fetch never fails its task.
	for _, r := range reports {
		assert.True(t, r.OK)
	}

	// The failure is persisted as an error-marked record under its
	// operation name.
	agg := contextstore.NewAggregator(store)
	view := agg.ForLead("a")
	payload, ok := view["get_linkedin_profile"]
	require.True(t, ok, "error-marked record must be visible to aggregation")
	msg, failed := tools.IsErrorPayload(payload)
	assert.True(t, failed)
	assert.Contains(t, msg, "unavailable")
}

func TestExecuteResearch_ResolutionFailureFailsOnlyThatTask(t *testing.T) {
	leads := testLeads()
	registry := stubRegistry()
	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)

	planner := NewPlanner(nil, registry, nil)
	plan := planner.PlanResearch(context.Background(), leads, "campaign")
	// Point one profile task at a lead the batch does not contain, which
	// deterministically faults its resolution.
	for i := range plan.Tasks {
		if plan.Tasks[i].LeadID == "b" {
			plan.Tasks[i].LeadID = "ghost"
		}
	}

	var mu sync.Mutex
	completions := make(map[int]bool)
	executor := NewExecutor(registry, store, nil, nil)
	reports, err := executor.ExecuteResearch(context.Background(), plan, leads, TaskCallback{
		OnComplete: func(task types.Task, ok bool, err error) {
			mu.Lock()
			completions[task.ID] = ok
			mu.Unlock()
		},
	})
	require.NoError(t, err, "a resolution fault must not abort the batch")

	var failed, succeeded int
	for _, r := range reports {
		if r.OK {
			succeeded++
		} else {
			failed++
			assert.Contains(t, r.Error, "unknown lead")
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, len(plan.Tasks)-1, succeeded)
	assert.Len(t, completions, len(plan.Tasks))

	// Aggregation still serves every lead, the orphaned one included.
	agg := contextstore.NewAggregator(store)
	assert.NotEmpty(t, agg.ForLead("a"))
	assert.Empty(t, agg.ForLead("b"))
	assert.NotEmpty(t, agg.ForCompany("Acme"))
}

func TestExecuteResearch_CollaboratorResolution(t *testing.T) {
	leads := testLeads()[:1]
	registry := stubRegistry()
	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)

	client := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return `{"tool_calls": [
				{"name": "get_linkedin_profile", "args": {"linkedin_url": "https://linkedin.com/in/alice"}},
				{"name": "no_such_tool", "args": {}}
			]}`, nil
		},
	}

	plan := types.ResearchPlan{Tasks: []types.Task{{
		ID: 1, Kind: types.TaskProfileResearch, Description: "Research Alice", LeadID: "a",
		SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn profile for Alice"}},
	}}}

	executor := NewExecutor(registry, store, client, nil)
	reports, err := executor.ExecuteResearch(context.Background(), plan, leads, TaskCallback{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].OK)

	// The known call ran; the unknown tool was skipped, not fatal.
	assert.Len(t, store.PointersForLead("a"), 1)
}

func TestExecuteResearch_BoundedConcurrency(t *testing.T) {
	leads := testLeads()
	registry := tools.NewRegistry()

	var inFlight, maxInFlight atomic.Int32
	fetch := func(ctx context.Context, args map[string]any) map[string]any {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		return map[string]any{"ok": true}
	}
	for _, spec := range []struct {
		name  string
		scope tools.Scope
	}{
		{"get_linkedin_profile", tools.ScopeLead},
		{"get_linkedin_activity", tools.ScopeLead},
		{"get_linkedin_company", tools.ScopeCompany},
		{"get_company_posts", tools.ScopeCompany},
		{"get_company_news", tools.ScopeCompany},
		{"get_company_funding", tools.ScopeCompany},
	} {
		require.NoError(t, registry.Register(tools.Operation{
			Name: spec.name, Description: spec.name, Scope: spec.scope, Fetch: fetch,
		}))
	}

	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)
	planner := NewPlanner(nil, registry, nil)
	plan := planner.PlanResearch(context.Background(), leads, "campaign")

	executor := NewExecutor(registry, store, nil, nil)
	executor.SetMaxConcurrentFetches(2)
	_, err = executor.ExecuteResearch(context.Background(), plan, leads, TaskCallback{})
	require.NoError(t, err)

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestExecuteResearch_Cancellation(t *testing.T) {
	leads := testLeads()
	registry := tools.NewRegistry()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once
	require.NoError(t, registry.Register(tools.Operation{
		Name: "get_linkedin_profile", Description: "blocks", Scope: tools.ScopeLead,
		Fetch: func(ctx context.Context, args map[string]any) map[string]any {
			once.Do(started.Done)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return tools.ErrorPayload("cancelled")
		},
	}))

	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)
	planner := NewPlanner(nil, registry, nil)
	plan := planner.PlanResearch(context.Background(), leads, "campaign")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		started.Wait()
		cancel()
	}()

	executor := NewExecutor(registry, store, nil, nil)
	_, execErr := executor.ExecuteResearch(ctx, plan, leads, TaskCallback{})
	close(release)
	require.Error(t, execErr)
	assert.ErrorIs(t, execErr, context.Canceled)
}

func TestDedupeCalls(t *testing.T) {
	calls := []toolCall{
		{Name: "a", Args: map[string]any{"x": 1}},
		{Name: "a", Args: map[string]any{"x": 1}},
		{Name: "a", Args: map[string]any{"x": 2}},
	}
	out := dedupeCalls(calls)
	require.Len(t, out, 2)
	assert.Equal(t, fmt.Sprintf("%v", calls[0].Args), fmt.Sprintf("%v", out[0].Args))
}
