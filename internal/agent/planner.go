// Package agent implements the research pipeline: planning, execution,
// qualification, copy generation, and the orchestrator that sequences them.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"prospector/internal/llm"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// Planner builds the research task graph for a batch of leads. The planning
// collaborator proposes the plan; when it is unavailable or its output does
// not validate, the deterministic fallback takes over. The fallback never
// fails.
type Planner struct {
	llm      llm.Client // nil disables the collaborator
	registry *tools.Registry
	logger   *zap.Logger
}

// NewPlanner creates a planner. client may be nil to force deterministic
// planning.
func NewPlanner(client llm.Client, registry *tools.Registry, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: client, registry: registry, logger: logger}
}

// companyGroup is one partition of the batch sharing a group key.
type companyGroup struct {
	Key     string
	Company string
	Leads   []types.Lead
}

// groupByCompany partitions leads by group key, preserving first-seen order
// of groups and of leads within a group. Leads without a company are
// singleton groups.
func groupByCompany(leads []types.Lead) []companyGroup {
	var groups []companyGroup
	byKey := make(map[string]int)
	for _, lead := range leads {
		key := lead.GroupKey()
		if pos, ok := byKey[key]; ok {
			groups[pos].Leads = append(groups[pos].Leads, lead)
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, companyGroup{Key: key, Company: lead.CompanyName, Leads: []types.Lead{lead}})
	}
	return groups
}

// PlanResearch produces the task graph for a batch. An empty batch yields an
// empty plan, not an error.
func (p *Planner) PlanResearch(ctx context.Context, leads []types.Lead, campaignContext string) types.ResearchPlan {
	if len(leads) == 0 {
		return types.ResearchPlan{}
	}
	groups := groupByCompany(leads)

	if p.llm != nil {
		plan, err := p.llmPlan(ctx, leads, groups, campaignContext)
		if err == nil {
			if verr := ValidatePlan(plan, leads); verr == nil {
				p.logger.Debug("using collaborator research plan", zap.Int("tasks", len(plan.Tasks)))
				return plan
			} else {
				p.logger.Warn("collaborator plan rejected, falling back", zap.Error(verr))
			}
		} else {
			p.logger.Warn("planning collaborator failed, falling back", zap.Error(err))
		}
	}

	return p.fallbackPlan(leads, groups)
}

// llmPlan asks the planning collaborator for a plan.
func (p *Planner) llmPlan(ctx context.Context, leads []types.Lead, groups []companyGroup, campaignContext string) (types.ResearchPlan, error) {
	var leadLines, companyLines []string
	for _, lead := range leads {
		leadLines = append(leadLines, fmt.Sprintf("- %s (%s) at %s [ID: %s]", lead.Name, lead.Title, lead.CompanyName, lead.ID))
	}
	for _, g := range groups {
		companyLines = append(companyLines, fmt.Sprintf("- %s: %d leads", g.Company, len(g.Leads)))
	}

	prompt := fmt.Sprintf(`Campaign Context:
%s

Leads to research (%d total):
%s

Companies (%d unique):
%s

Create an efficient research plan:
1. ONE company_research task per unique company (include all lead_ids for that company)
2. ONE profile_research task per lead
3. Keep subtasks specific and actionable`,
		campaignContext, len(leads), strings.Join(leadLines, "\n"),
		len(groups), strings.Join(companyLines, "\n"))

	system := fillPrompt(planningSystemPrompt, map[string]string{"tools": p.registry.SchemaText()})

	var plan types.ResearchPlan
	if err := llm.CompleteJSON(ctx, p.llm, system, prompt, &plan); err != nil {
		return types.ResearchPlan{}, err
	}
	return plan, nil
}

// fallbackPlan builds the deterministic plan: one company task per group with
// a subtask per company-scoped operation, then one profile task per lead with
// a subtask per lead-scoped operation. Task ids are a strictly increasing
// counter across company tasks first.
func (p *Planner) fallbackPlan(leads []types.Lead, groups []companyGroup) types.ResearchPlan {
	var plan types.ResearchPlan
	taskID := 1

	companyOps := p.registry.OperationsForScope(tools.ScopeCompany)
	for _, g := range groups {
		subject := g.Company
		if subject == "" {
			subject = "company of " + g.Leads[0].Name
		}
		task := types.Task{
			ID:          taskID,
			Kind:        types.TaskCompanyResearch,
			Description: "Research " + subject,
			Company:     g.Company,
		}
		for _, lead := range g.Leads {
			task.LeadIDs = append(task.LeadIDs, lead.ID)
		}
		for i, op := range companyOps {
			task.SubTasks = append(task.SubTasks, types.SubTask{
				ID:          i + 1,
				Description: fmt.Sprintf("%s for %s", humanizeOp(op.Name), subject),
			})
		}
		plan.Tasks = append(plan.Tasks, task)
		taskID++
	}

	leadOps := p.registry.OperationsForScope(tools.ScopeLead)
	for _, lead := range leads {
		task := types.Task{
			ID:          taskID,
			Kind:        types.TaskProfileResearch,
			Description: "Research " + lead.Name,
			LeadID:      lead.ID,
		}
		for i, op := range leadOps {
			task.SubTasks = append(task.SubTasks, types.SubTask{
				ID:          i + 1,
				Description: fmt.Sprintf("%s for %s", humanizeOp(op.Name), lead.LinkedInURL),
			})
		}
		plan.Tasks = append(plan.Tasks, task)
		taskID++
	}

	p.logger.Debug("built deterministic research plan",
		zap.Int("company_tasks", len(groups)),
		zap.Int("profile_tasks", len(leads)))
	return plan
}

func humanizeOp(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// ValidatePlan checks that a plan has the required shape for the given batch:
// unique strictly-positive task ids, every lead in exactly one company task's
// member list, and exactly one profile task per lead.
func ValidatePlan(plan types.ResearchPlan, leads []types.Lead) error {
	if len(plan.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	seenIDs := make(map[int]bool)
	companyCover := make(map[string]int)
	profileCover := make(map[string]int)

	for _, t := range plan.Tasks {
		if t.ID <= 0 {
			return fmt.Errorf("task %q has invalid id %d", t.Description, t.ID)
		}
		if seenIDs[t.ID] {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		seenIDs[t.ID] = true

		switch t.Kind {
		case types.TaskCompanyResearch:
			for _, id := range t.LeadIDs {
				companyCover[id]++
			}
		case types.TaskProfileResearch:
			if t.LeadID == "" {
				return fmt.Errorf("profile task %d has no lead_id", t.ID)
			}
			profileCover[t.LeadID]++
		default:
			return fmt.Errorf("task %d has unknown kind %q", t.ID, t.Kind)
		}
	}

	for _, lead := range leads {
		if n := companyCover[lead.ID]; n != 1 {
			return fmt.Errorf("lead %s appears in %d company tasks, want 1", lead.ID, n)
		}
		if n := profileCover[lead.ID]; n != 1 {
			return fmt.Errorf("lead %s has %d profile tasks, want 1", lead.ID, n)
		}
	}
	return nil
}
