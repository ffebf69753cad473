package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prospector/internal/contextstore"
	"prospector/internal/llm"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// Executor runs a research plan: every task concurrently, and every resolved
// fetch within a task concurrently. Fetch failures are persisted as
// error-marked records and never fail their task; only a resolution fault
// marks a task failed, and only a store write failure aborts the batch.
type Executor struct {
	registry *tools.Registry
	store    *contextstore.Store
	llm      llm.Client // nil disables the resolution collaborator
	logger   *zap.Logger

	// maxConcurrent bounds in-flight fetches across the whole batch.
	// Zero means unbounded.
	maxConcurrent int
}

// NewExecutor creates an executor. client may be nil to force deterministic
// subtask resolution.
func NewExecutor(registry *tools.Registry, store *contextstore.Store, client llm.Client, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, store: store, llm: client, logger: logger}
}

// SetMaxConcurrentFetches bounds fetch fan-out. Zero restores unbounded mode.
func (e *Executor) SetMaxConcurrentFetches(n int) {
	if n < 0 {
		n = 0
	}
	e.maxConcurrent = n
}

// toolCall is one resolved (operation, arguments) pair.
type toolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// TaskCallback observes task lifecycle events. Either field may be nil.
type TaskCallback struct {
	OnStart    func(task types.Task)
	OnComplete func(task types.Task, ok bool, err error)
}

// ExecuteResearch runs every task in the plan and returns one report per
// task, in plan order. The returned error is non-nil only for structural
// failures (context cancellation, unwritable store); per-task faults are
// reported in the TaskReports.
func (e *Executor) ExecuteResearch(ctx context.Context, plan types.ResearchPlan, leads []types.Lead, cb TaskCallback) ([]types.TaskReport, error) {
	leadIndex := make(map[string]types.Lead, len(leads))
	for _, l := range leads {
		leadIndex[l.ID] = l
	}

	var sem chan struct{}
	if e.maxConcurrent > 0 {
		sem = make(chan struct{}, e.maxConcurrent)
	}

	reports := make([]types.TaskReport, len(plan.Tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range plan.Tasks {
		g.Go(func() error {
			if cb.OnStart != nil {
				cb.OnStart(task)
			}
			report, structural := e.executeTask(gctx, task, leadIndex, sem)
			reports[i] = report
			if cb.OnComplete != nil {
				var err error
				if report.Error != "" {
					err = fmt.Errorf("%s", report.Error)
				}
				cb.OnComplete(task, report.OK, err)
			}
			if structural != nil {
				return fmt.Errorf("task %d: %w", task.ID, structural)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, ctx.Err()
}

// executeTask resolves one task's subtasks and runs the resulting fetches
// concurrently, persisting every payload as it arrives. A non-nil second
// return is a structural failure (store write or cancellation) that aborts
// the batch; task-level faults only mark the report.
func (e *Executor) executeTask(ctx context.Context, task types.Task, leadIndex map[string]types.Lead, sem chan struct{}) (types.TaskReport, error) {
	report := types.TaskReport{
		TaskID:      task.ID,
		Kind:        task.Kind,
		Description: task.Description,
	}

	calls, err := e.resolveTask(ctx, task, leadIndex)
	if err != nil {
		e.logger.Warn("subtask resolution failed",
			zap.Int("task", task.ID),
			zap.Error(err))
		report.Error = err.Error()
		return report, nil
	}
	if len(calls) == 0 {
		// Nothing resolvable: the task is a no-op, not a failure.
		e.logger.Debug("task resolved to no operations", zap.Int("task", task.ID))
		report.OK = true
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return e.invoke(gctx, task, call)
		})
	}
	if err := g.Wait(); err != nil {
		report.Error = err.Error()
		return report, err
	}

	report.OK = true
	return report, nil
}

// invoke runs one fetch and persists its payload immediately. Fetch failures
// arrive as in-band error payloads and are persisted like successes; the only
// error path out of here is the store itself.
func (e *Executor) invoke(ctx context.Context, task types.Task, call toolCall) error {
	op, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn("resolved operation not in registry, skipping",
			zap.Int("task", task.ID),
			zap.String("op", call.Name))
		return nil
	}

	payload := op.Fetch(ctx, call.Args)
	if msg, failed := tools.IsErrorPayload(payload); failed {
		e.logger.Warn("fetch returned error payload",
			zap.Int("task", task.ID),
			zap.String("op", call.Name),
			zap.String("error", msg))
	}

	_, err := e.store.Write(call.Name, call.Args, payload, task.ID, task.LeadID, task.Company)
	if err != nil {
		return fmt.Errorf("failed to persist %s result: %w", call.Name, err)
	}
	return nil
}

// resolveTask turns a task's subtasks into concrete tool calls. The
// resolution collaborator gets first try; a collaborator fault falls back to
// deterministic pattern matching against the registry. Duplicate calls are
// collapsed.
func (e *Executor) resolveTask(ctx context.Context, task types.Task, leadIndex map[string]types.Lead) ([]toolCall, error) {
	if e.llm != nil {
		calls, err := e.llmResolve(ctx, task)
		if err == nil {
			return dedupeCalls(calls), nil
		}
		e.logger.Debug("resolution collaborator failed, using deterministic resolution",
			zap.Int("task", task.ID),
			zap.Error(err))
	}

	calls, err := e.deterministicResolve(task, leadIndex)
	if err != nil {
		return nil, err
	}
	return dedupeCalls(calls), nil
}

// llmResolve delegates resolution to the collaborator.
func (e *Executor) llmResolve(ctx context.Context, task types.Task) ([]toolCall, error) {
	var lines string
	for _, st := range task.SubTasks {
		lines += "- " + st.Description + "\n"
	}
	prompt := fmt.Sprintf(`Task: %s

Subtasks to complete:
%s
Call the appropriate tools to gather data for these subtasks.
For each subtask, call ONE tool with the correct arguments.`, task.Description, lines)

	system := fillPrompt(resolutionSystemPrompt, map[string]string{"tools": e.registry.SchemaText()})

	var resolved struct {
		ToolCalls []toolCall `json:"tool_calls"`
	}
	if err := llm.CompleteJSON(ctx, e.llm, system, prompt, &resolved); err != nil {
		return nil, err
	}
	return resolved.ToolCalls, nil
}

// deterministicResolve pattern-matches subtask descriptions against the
// registry. A profile task naming a lead the batch does not contain is a
// resolution fault; an individual subtask that matches nothing is skipped.
func (e *Executor) deterministicResolve(task types.Task, leadIndex map[string]types.Lead) ([]toolCall, error) {
	var lead *types.Lead
	if task.Kind == types.TaskProfileResearch {
		l, ok := leadIndex[task.LeadID]
		if !ok {
			return nil, fmt.Errorf("task references unknown lead %q", task.LeadID)
		}
		lead = &l
	}

	var calls []toolCall
	for _, st := range task.SubTasks {
		name, args, ok := e.registry.Resolve(st.Description, task, lead)
		if !ok {
			e.logger.Debug("subtask did not resolve",
				zap.Int("task", task.ID),
				zap.String("subtask", st.Description))
			continue
		}
		calls = append(calls, toolCall{Name: name, Args: args})
	}
	return calls, nil
}

// dedupeCalls drops repeated (name, args) pairs. Repeats would be idempotent
// at the store anyway, but there is no reason to fetch twice.
func dedupeCalls(calls []toolCall) []toolCall {
	seen := make(map[string]bool, len(calls))
	var out []toolCall
	for _, c := range calls {
		key := c.Name
		if raw, err := json.Marshal(c.Args); err == nil {
			key += string(raw)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
