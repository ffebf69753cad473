package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/agent"
	"prospector/internal/types"
)

// stubProcessor fabricates one fallback-shaped result per lead.
type stubProcessor struct {
	err   error
	calls int
}

func (p *stubProcessor) ProcessLeads(ctx context.Context, leads []types.Lead, cb agent.TaskCallback) (types.BatchResult, error) {
	p.calls++
	if p.err != nil {
		return types.BatchResult{}, p.err
	}
	out := types.BatchResult{RunID: "test-run"}
	for _, lead := range leads {
		out.Leads = append(out.Leads, types.QualifiedLead{
			Lead:          lead,
			Qualification: types.Qualification{Score: 60, Priority: types.PriorityMedium},
		})
	}
	return out, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", &stubProcessor{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestQualify(t *testing.T) {
	processor := &stubProcessor{}
	s := NewServer(":0", processor, nil)

	rec := postJSON(t, s.Handler(), "/qualify", map[string]string{
		"name": "Alice Ames", "company_name": "Acme", "linkedin_url": "https://linkedin.com/in/alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out types.QualifiedLead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Alice Ames", out.Lead.Name)
	assert.Equal(t, 60, out.Qualification.Score)
	assert.True(t, strings.HasPrefix(out.Lead.ID, "lead_"), "missing id gets generated")
	assert.Equal(t, 1, processor.calls)
}

func TestQualify_Validation(t *testing.T) {
	s := NewServer(":0", &stubProcessor{}, nil)

	rec := postJSON(t, s.Handler(), "/qualify", map[string]string{"title": "CTO"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	req := httptest.NewRequest(http.MethodPost, "/qualify", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestQualify_ProcessorFailure(t *testing.T) {
	s := NewServer(":0", &stubProcessor{err: fmt.Errorf("store unwritable")}, nil)
	rec := postJSON(t, s.Handler(), "/qualify", map[string]string{"name": "Alice"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQualifyBatch(t *testing.T) {
	s := NewServer(":0", &stubProcessor{}, nil)

	rec := postJSON(t, s.Handler(), "/qualify/batch", map[string]any{
		"leads": []map[string]string{
			{"id": "a", "name": "Alice Ames", "company_name": "Acme"},
			{"id": "b", "name": "Bob Burns", "company_name": "Acme"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out types.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "test-run", out.RunID)
	assert.Len(t, out.Leads, 2)
}

func TestQualifyBatch_Validation(t *testing.T) {
	s := NewServer(":0", &stubProcessor{}, nil)

	rec := postJSON(t, s.Handler(), "/qualify/batch", map[string]any{"leads": []map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, s.Handler(), "/qualify/batch", map[string]any{
		"leads": []map[string]string{{"id": "a"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "lead 0")
}

func TestWebhookQualify(t *testing.T) {
	delivered := make(chan types.QualifiedLead, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var lead types.QualifiedLead
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lead))
		delivered <- lead
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	s := NewServer(":0", &stubProcessor{}, nil)
	rec := postJSON(t, s.Handler(), "/webhook/qualify", map[string]string{
		"name": "Alice Ames", "webhook_url": sink.URL,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "lead_id")

	select {
	case lead := <-delivered:
		assert.Equal(t, "Alice Ames", lead.Lead.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}

	// Shutdown waits for webhook deliveries to finish.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestWebhookQualify_RequiresURL(t *testing.T) {
	s := NewServer(":0", &stubProcessor{}, nil)
	rec := postJSON(t, s.Handler(), "/webhook/qualify", map[string]string{"name": "Alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "webhook_url")
}
