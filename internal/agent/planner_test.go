package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/types"
)

func TestPlanResearch_EmptyBatch(t *testing.T) {
	p := NewPlanner(nil, stubRegistry(), nil)
	plan := p.PlanResearch(context.Background(), nil, "campaign")
	assert.Empty(t, plan.Tasks)
}

func TestPlanResearch_DeterministicDedup(t *testing.T) {
	p := NewPlanner(nil, stubRegistry(), nil)
	leads := testLeads()

	plan := p.PlanResearch(context.Background(), leads, "campaign")

	companyTasks := plan.CompanyTasks()
	profileTasks := plan.ProfileTasks()
	require.Len(t, companyTasks, 2, "one company task per distinct company")
	require.Len(t, profileTasks, 3, "one profile task per lead")

	// Group order and membership follow first-seen order.
	assert.Equal(t, "Acme", companyTasks[0].Company)
	assert.Equal(t, []string{"a", "b"}, companyTasks[0].LeadIDs)
	assert.Equal(t, "Widgets", companyTasks[1].Company)
	assert.Equal(t, []string{"c"}, companyTasks[1].LeadIDs)

	// Every lead appears in exactly one company task's member list.
	membership := make(map[string]int)
	for _, task := range companyTasks {
		for _, id := range task.LeadIDs {
			membership[id]++
		}
	}
	for _, lead := range leads {
		assert.Equal(t, 1, membership[lead.ID], "lead %s membership", lead.ID)
	}

	// Task ids are strictly increasing, company tasks first.
	for i := 1; i < len(plan.Tasks); i++ {
		assert.Greater(t, plan.Tasks[i].ID, plan.Tasks[i-1].ID)
	}
	assert.Equal(t, types.TaskCompanyResearch, plan.Tasks[0].Kind)

	require.NoError(t, ValidatePlan(plan, leads))
}

func TestPlanResearch_EmptyCompanyIsSingletonGroup(t *testing.T) {
	p := NewPlanner(nil, stubRegistry(), nil)
	leads := []types.Lead{
		{ID: "x", Name: "X", CompanyName: ""},
		{ID: "y", Name: "Y", CompanyName: ""},
	}

	plan := p.PlanResearch(context.Background(), leads, "campaign")

	require.Len(t, plan.CompanyTasks(), 2, "leads without a company must not be merged")
	require.NoError(t, ValidatePlan(plan, leads))
}

func TestPlanResearch_CollaboratorFailureFallsBack(t *testing.T) {
	client := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return "", fmt.Errorf("model unavailable")
		},
	}
	p := NewPlanner(client, stubRegistry(), nil)

	plan := p.PlanResearch(context.Background(), testLeads(), "campaign")

	assert.Len(t, plan.CompanyTasks(), 2)
	assert.Len(t, plan.ProfileTasks(), 3)
}

func TestPlanResearch_InvalidCollaboratorPlanFallsBack(t *testing.T) {
	// Plan that drops lead c entirely.
	bad := types.ResearchPlan{Tasks: []types.Task{
		{ID: 1, Kind: types.TaskCompanyResearch, Company: "Acme", LeadIDs: []string{"a", "b"},
			SubTasks: []types.SubTask{{ID: 1, Description: "get company page"}}},
		{ID: 2, Kind: types.TaskProfileResearch, LeadID: "a",
			SubTasks: []types.SubTask{{ID: 1, Description: "get profile"}}},
		{ID: 3, Kind: types.TaskProfileResearch, LeadID: "b",
			SubTasks: []types.SubTask{{ID: 1, Description: "get profile"}}},
	}}
	raw, err := json.Marshal(bad)
	if err != nil {
		t.Fatal(err)
	}
	client := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return string(raw), nil
		},
	}
	p := NewPlanner(client, stubRegistry(), nil)

	plan := p.PlanResearch(context.Background(), testLeads(), "campaign")

	// Rejected plan means the deterministic shape: 2 company + 3 profile.
	assert.Len(t, plan.CompanyTasks(), 2)
	assert.Len(t, plan.ProfileTasks(), 3)
	assert.NoError(t, ValidatePlan(plan, testLeads()))
}

func TestPlanResearch_ValidCollaboratorPlanAccepted(t *testing.T) {
	good := types.ResearchPlan{Tasks: []types.Task{
		{ID: 1, Kind: types.TaskCompanyResearch, Description: "Research Acme", Company: "Acme",
			LeadIDs:  []string{"a", "b"},
			SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn company page for Acme"}}},
		{ID: 2, Kind: types.TaskCompanyResearch, Description: "Research Widgets", Company: "Widgets",
			LeadIDs:  []string{"c"},
			SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn company page for Widgets"}}},
		{ID: 3, Kind: types.TaskProfileResearch, Description: "Research Alice", LeadID: "a",
			SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn profile for Alice"}}},
		{ID: 4, Kind: types.TaskProfileResearch, Description: "Research Bob", LeadID: "b",
			SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn profile for Bob"}}},
		{ID: 5, Kind: types.TaskProfileResearch, Description: "Research Carol", LeadID: "c",
			SubTasks: []types.SubTask{{ID: 1, Description: "Get LinkedIn profile for Carol"}}},
	}}
	raw, err := json.Marshal(good)
	if err != nil {
		t.Fatal(err)
	}
	client := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return string(raw), nil
		},
	}
	p := NewPlanner(client, stubRegistry(), nil)

	plan := p.PlanResearch(context.Background(), testLeads(), "campaign")

	require.Len(t, plan.Tasks, 5)
	assert.Equal(t, "Research Alice", plan.Tasks[2].Description)
}

func TestValidatePlan(t *testing.T) {
	leads := testLeads()
	base := func() types.ResearchPlan {
		p := NewPlanner(nil, stubRegistry(), nil)
		return p.PlanResearch(context.Background(), leads, "campaign")
	}

	tests := []struct {
		name    string
		mutate  func(*types.ResearchPlan)
		wantErr string
	}{
		{"valid", func(p *types.ResearchPlan) {}, ""},
		{"empty", func(p *types.ResearchPlan) { p.Tasks = nil }, "no tasks"},
		{"duplicate id", func(p *types.ResearchPlan) { p.Tasks[1].ID = p.Tasks[0].ID }, "duplicate task id"},
		{"missing lead_id", func(p *types.ResearchPlan) { p.Tasks[2].LeadID = "" }, "no lead_id"},
		{"unknown kind", func(p *types.ResearchPlan) { p.Tasks[0].Kind = "audit" }, "unknown kind"},
		{"double membership", func(p *types.ResearchPlan) {
			p.Tasks[1].LeadIDs = append(p.Tasks[1].LeadIDs, "a")
		}, "company tasks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := base()
			tt.mutate(&plan)
			err := ValidatePlan(plan, leads)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
