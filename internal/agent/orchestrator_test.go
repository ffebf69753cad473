package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prospector/internal/contextstore"
	"prospector/internal/llm"
	"prospector/internal/tools"
	"prospector/internal/types"
)

// dispatchLLM routes each collaborator's call by its system prompt so one
// mock can drive the whole pipeline.
func dispatchLLM(t *testing.T, responses map[string]string) *mockLLM {
	t.Helper()
	return &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			for marker, response := range responses {
				if strings.Contains(system, marker) {
					return response, nil
				}
			}
			t.Errorf("unexpected collaborator call, system prompt: %.60s", system)
			return "", nil
		},
	}
}

func newTestAgent(t *testing.T, client, copyClient *mockLLM, registry *tools.Registry, opts Options) *Agent {
	t.Helper()
	store, err := newTestStore(t.TempDir())
	require.NoError(t, err)
	// A typed nil *mockLLM must become a true nil interface.
	var c, cc llm.Client
	if client != nil {
		c = client
	}
	if copyClient != nil {
		cc = copyClient
	}
	return New("Selling observability tooling to engineering leaders", c, cc, registry, store, opts, nil)
}

func TestProcessLeads_EmptyBatch(t *testing.T) {
	a := newTestAgent(t, nil, nil, stubRegistry(), Options{QualificationThreshold: 50})
	result, err := a.ProcessLeads(context.Background(), nil, TaskCallback{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Leads)
}

func TestProcessLeads_DeterministicPipeline(t *testing.T) {
	leads := testLeads()
	a := newTestAgent(t, nil, nil, stubRegistry(), Options{QualificationThreshold: 50})

	result, err := a.ProcessLeads(context.Background(), leads, TaskCallback{})
	require.NoError(t, err)

	require.Len(t, result.Leads, 3)
	require.Len(t, result.Reports, 5, "2 company tasks + 3 profile tasks")
	for _, r := range result.Reports {
		assert.True(t, r.OK)
	}

	for i, ql := range result.Leads {
		assert.Equal(t, leads[i].ID, ql.Lead.ID)
		// Without a collaborator every verdict is the manual-review fallback.
		assert.Equal(t, 30, ql.Qualification.Score)
		assert.Equal(t, types.PriorityLow, ql.Qualification.Priority)
		assert.Nil(t, ql.Copy, "below threshold, no copy")
		assert.Empty(t, ql.ErroredFetches)

		// Each lead sees exactly its own company task and its own profile task.
		require.Len(t, ql.Reports, 2, "lead %s", ql.Lead.ID)
		assert.Equal(t, types.TaskCompanyResearch, ql.Reports[0].Kind)
		assert.Equal(t, types.TaskProfileResearch, ql.Reports[1].Kind)

		assert.Contains(t, ql.Summary.ProfileHighlights, "Engineering leader")
		assert.Contains(t, ql.Summary.CompanyHighlights, "Industry: Software")
	}
	assert.Equal(t, 0, result.QualifiedCount())
}

func TestProcessLeads_QualifiedLeadGetsCopy(t *testing.T) {
	client := dispatchLLM(t, map[string]string{
		"planning component":   `not json, force the fallback plan`,
		"execution component":  `also not json, force deterministic resolution`,
		"qualification expert": `{"score": 85, "fit_reasons": ["CTO at a funded startup"], "priority": "high"}`,
	})
	copyClient := dispatchLLM(t, map[string]string{
		"sales copywriter": `{"subject_line": "Quick question about Acme's platform", "email_body": "Hi Alice,", "linkedin_message": "Hi Alice!", "talking_points": ["Series B"]}`,
	})
	a := newTestAgent(t, client, copyClient, stubRegistry(), Options{QualificationThreshold: 50})

	result, err := a.ProcessLeads(context.Background(), testLeads(), TaskCallback{})
	require.NoError(t, err)

	require.Len(t, result.Leads, 3)
	assert.Equal(t, 3, result.QualifiedCount())
	for _, ql := range result.Leads {
		assert.Equal(t, 85, ql.Qualification.Score)
		assert.Equal(t, types.PriorityHigh, ql.Qualification.Priority)
		require.NotNil(t, ql.Copy)
		assert.Equal(t, "Quick question about Acme's platform", ql.Copy.SubjectLine)
	}
}

func TestProcessLeads_BelowThresholdSkipsCopy(t *testing.T) {
	client := dispatchLLM(t, map[string]string{
		"planning component":   `nope`,
		"execution component":  `nope`,
		"qualification expert": `{"score": 20, "red_flags": ["wrong industry"], "priority": "low"}`,
	})
	copyClient := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			t.Error("copy generator must not be called below the threshold")
			return "", nil
		},
	}
	a := newTestAgent(t, client, copyClient, stubRegistry(), Options{QualificationThreshold: 50})

	result, err := a.ProcessLeads(context.Background(), testLeads(), TaskCallback{})
	require.NoError(t, err)
	for _, ql := range result.Leads {
		assert.Nil(t, ql.Copy)
	}
	assert.Equal(t, 0, result.QualifiedCount())
}

func TestProcessLeads_PartialDataIsFlagged(t *testing.T) {
	a := newTestAgent(t, nil, nil, stubRegistry("get_company_news"), Options{QualificationThreshold: 50})

	result, err := a.ProcessLeads(context.Background(), testLeads(), TaskCallback{})
	require.NoError(t, err)

	for _, ql := range result.Leads {
		assert.Contains(t, ql.ErroredFetches, "get_company_news", "lead %s", ql.Lead.ID)
	}
	// A failed fetch is partial data, not a failed task.
	for _, r := range result.Reports {
		assert.True(t, r.OK)
	}
}

func TestProcessLeads_CopyContextNarrowing(t *testing.T) {
	client := dispatchLLM(t, map[string]string{
		"planning component":   `nope`,
		"execution component":  `nope`,
		"qualification expert": `{"score": 90, "priority": "high"}`,
	})

	// The relevance selector keeps only the profile record.
	selector := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			var infos []struct {
				ID   int    `json:"id"`
				Tool string `json:"tool_name"`
			}
			if err := json.Unmarshal([]byte(llm.ExtractJSON(user)), &infos); err != nil {
				return "", err
			}
			for _, info := range infos {
				if info.Tool == "get_linkedin_profile" {
					return fmt.Sprintf(`{"context_ids": [%d]}`, info.ID), nil
				}
			}
			return `{"context_ids": []}`, nil
		},
	}

	var copyPrompt string
	copyClient := &mockLLM{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			copyPrompt = user
			return `{"subject_line": "s", "email_body": "b"}`, nil
		},
	}

	store, err := contextstore.New(t.TempDir(), selector, zap.NewNop())
	require.NoError(t, err)
	a := New("campaign", client, copyClient, stubRegistry(), store, Options{QualificationThreshold: 50}, nil)

	result, err := a.ProcessLeads(context.Background(), testLeads()[:1], TaskCallback{})
	require.NoError(t, err)
	require.Len(t, result.Leads, 1)
	require.NotNil(t, result.Leads[0].Copy)

	// The copy prompt sees the selected profile record and nothing else.
	assert.Contains(t, copyPrompt, "Engineering leader")
	assert.NotContains(t, copyPrompt, "Thoughts on platform engineering")
	assert.Contains(t, copyPrompt, "No company data available")
}

func TestProcessLeads_LeadWithoutCompany(t *testing.T) {
	leads := []types.Lead{{ID: "solo", Name: "Solo Person", LinkedInURL: "https://linkedin.com/in/solo"}}
	a := newTestAgent(t, nil, nil, stubRegistry(), Options{QualificationThreshold: 50})

	result, err := a.ProcessLeads(context.Background(), leads, TaskCallback{})
	require.NoError(t, err)

	require.Len(t, result.Leads, 1)
	ql := result.Leads[0]
	assert.Contains(t, ql.Summary.CompanyHighlights, "No company data")
	assert.Contains(t, ql.Summary.ProfileHighlights, "Engineering leader")
}
