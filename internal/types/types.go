// Package types provides shared type definitions used across prospector packages.
// This package exists to break import cycles between agent, contextstore, and api.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import "strings"

// =============================================================================
// LEAD TYPES
// =============================================================================

// Lead is one person to research and qualify. Leads are created by the caller
// before planning and are immutable afterwards.
type Lead struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	LinkedInURL string         `json:"linkedin_url"`
	CompanyName string         `json:"company_name"`
	Title       string         `json:"title"`
	RawData     map[string]any `json:"sales_navigator_data,omitempty"`
}

// GroupKey returns the key used to merge per-lead research into shared company
// tasks. Leads with no company are their own singleton group.
func (l Lead) GroupKey() string {
	if strings.TrimSpace(l.CompanyName) == "" {
		return "lead:" + l.ID
	}
	return l.CompanyName
}

// =============================================================================
// RESEARCH PLAN TYPES
// =============================================================================

// TaskKind distinguishes company-scoped from lead-scoped research.
type TaskKind string

const (
	TaskCompanyResearch TaskKind = "company_research"
	TaskProfileResearch TaskKind = "profile_research"
)

// SubTask is one atomic data-gathering step inside a task. The ID is unique
// within the parent task only.
type SubTask struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Task is one unit of planned research. A company task is shared by every lead
// at that company and carries all of their IDs; a profile task belongs to a
// single lead. Tasks are never mutated after planning and are not persisted;
// only their fetch results survive in the context store.
type Task struct {
	ID          int       `json:"id"`
	Kind        TaskKind  `json:"type"`
	Description string    `json:"description"`
	Company     string    `json:"company,omitempty"`
	LeadID      string    `json:"lead_id,omitempty"`
	LeadIDs     []string  `json:"lead_ids,omitempty"`
	SubTasks    []SubTask `json:"sub_tasks"`
}

// ResearchPlan is the full task graph for one batch: company tasks first, then
// profile tasks, with strictly increasing IDs. There are no cross-task
// dependencies, so this is a flat ordered list rather than a DAG.
type ResearchPlan struct {
	Tasks []Task `json:"tasks"`
}

// CompanyTasks returns the company-scoped tasks in plan order.
func (p ResearchPlan) CompanyTasks() []Task {
	var out []Task
	for _, t := range p.Tasks {
		if t.Kind == TaskCompanyResearch {
			out = append(out, t)
		}
	}
	return out
}

// ProfileTasks returns the lead-scoped tasks in plan order.
func (p ResearchPlan) ProfileTasks() []Task {
	var out []Task
	for _, t := range p.Tasks {
		if t.Kind == TaskProfileResearch {
			out = append(out, t)
		}
	}
	return out
}

// TasksForLead returns every task that contributes research for the given
// lead: its own profile task plus any company task listing it as a member.
func (p ResearchPlan) TasksForLead(leadID string) []Task {
	var out []Task
	for _, t := range p.Tasks {
		if t.LeadID == leadID {
			out = append(out, t)
			continue
		}
		for _, id := range t.LeadIDs {
			if id == leadID {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// TaskReport is the executor's per-task verdict. OK is false only when subtask
// resolution itself faulted; individual fetch failures are captured in the
// context store as error-marked records and do not fail the task.
type TaskReport struct {
	TaskID      int      `json:"task_id"`
	Kind        TaskKind `json:"type"`
	Description string   `json:"description"`
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
}

// =============================================================================
// QUALIFICATION TYPES
// =============================================================================

// Priority buckets for qualified leads.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Qualification is the scoring verdict for one lead.
type Qualification struct {
	Score       int      `json:"score"`
	FitReasons  []string `json:"fit_reasons"`
	RedFlags    []string `json:"red_flags"`
	KeyInsights []string `json:"key_insights"`
	Priority    string   `json:"priority"`
}

// PersonalizedCopy is outreach copy generated for a qualified lead.
type PersonalizedCopy struct {
	SubjectLine     string   `json:"subject_line"`
	EmailBody       string   `json:"email_body"`
	LinkedInMessage string   `json:"linkedin_message"`
	TalkingPoints   []string `json:"talking_points"`
}

// ResearchSummary condenses the gathered research for human review.
type ResearchSummary struct {
	ProfileHighlights []string `json:"profile_highlights"`
	CompanyHighlights []string `json:"company_highlights"`
	RecentActivity    []string `json:"recent_activity"`
}

// QualifiedLead is the complete per-lead output of a batch. Copy is nil when
// the score fell below the qualification threshold. Reports covers every task
// that touched this lead, shared company tasks included, so callers can tell
// whether the view behind the score was partial.
type QualifiedLead struct {
	Lead           Lead              `json:"lead"`
	Qualification  Qualification     `json:"qualification"`
	Copy           *PersonalizedCopy `json:"personalized_copy,omitempty"`
	Summary        ResearchSummary   `json:"research_summary"`
	Reports        []TaskReport      `json:"task_reports"`
	ErroredFetches []string          `json:"errored_fetches,omitempty"`
}

// BatchResult is the outcome of one orchestrated batch run.
type BatchResult struct {
	RunID   string          `json:"run_id"`
	Leads   []QualifiedLead `json:"leads"`
	Reports []TaskReport    `json:"reports"`
}

// QualifiedCount returns how many leads met the copy-generation threshold.
func (b BatchResult) QualifiedCount() int {
	n := 0
	for _, l := range b.Leads {
		if l.Copy != nil {
			n++
		}
	}
	return n
}
