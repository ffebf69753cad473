package contextstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestAddress_Deterministic(t *testing.T) {
	s := newStore(t)

	a1, err := s.Address("get_linkedin_profile", map[string]any{"linkedin_url": "https://linkedin.com/in/alice", "full": true}, "a", "")
	require.NoError(t, err)
	// Same call, different argument order in the literal. Maps have no order,
	// but this guards the canonicalization against future arg-shape changes.
	a2, err := s.Address("get_linkedin_profile", map[string]any{"full": true, "linkedin_url": "https://linkedin.com/in/alice"}, "a", "")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	// Scope participates in the address.
	a3, err := s.Address("get_linkedin_profile", map[string]any{"full": true, "linkedin_url": "https://linkedin.com/in/alice"}, "b", "")
	require.NoError(t, err)
	assert.NotEqual(t, a1, a3)

	// Operation participates in the address.
	a4, err := s.Address("get_linkedin_activity", map[string]any{"full": true, "linkedin_url": "https://linkedin.com/in/alice"}, "a", "")
	require.NoError(t, err)
	assert.NotEqual(t, a1, a4)

	assert.True(t, strings.HasSuffix(a1, ".json"))
	assert.Contains(t, filepath.Base(a1), "a_get_linkedin_profile_")
}

func TestAddress_SanitizesScope(t *testing.T) {
	s := newStore(t)
	addr, err := s.Address("get_linkedin_company", map[string]any{"company_name": "Ajax & Sons / EMEA"}, "", "Ajax & Sons / EMEA")
	require.NoError(t, err)
	base := filepath.Base(addr)
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, "&")
	assert.NotContains(t, base, " ")
}

func TestWrite_IdempotentAddress(t *testing.T) {
	s := newStore(t)
	args := map[string]any{"linkedin_url": "https://linkedin.com/in/alice"}

	addr1, err := s.Write("get_linkedin_profile", args, map[string]any{"headline": "first"}, 1, "a", "")
	require.NoError(t, err)
	addr2, err := s.Write("get_linkedin_profile", args, map[string]any{"headline": "second"}, 4, "a", "")
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	// One pointer, not two, and it reflects the latest write.
	ptrs := s.PointersForLead("a")
	require.Len(t, ptrs, 1)
	assert.Equal(t, 4, ptrs[0].TaskID)
	assert.Equal(t, uint64(2), ptrs[0].Seq)

	// The record on disk carries the second payload.
	recs := s.Read([]string{addr1})
	require.Len(t, recs, 1)
	result, ok := recs[0].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "second", result["headline"])

	// Exactly one record file exists.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_ScopedIsolation(t *testing.T) {
	s := newStore(t)

	_, err := s.Write("get_linkedin_profile", map[string]any{"linkedin_url": "u1"}, "p1", 1, "a", "")
	require.NoError(t, err)
	_, err = s.Write("get_linkedin_profile", map[string]any{"linkedin_url": "u2"}, "p2", 2, "b", "")
	require.NoError(t, err)
	_, err = s.Write("get_linkedin_company", map[string]any{"company_name": "Acme"}, "c1", 3, "", "Acme")
	require.NoError(t, err)

	assert.Len(t, s.PointersForLead("a"), 1)
	assert.Len(t, s.PointersForLead("b"), 1)
	assert.Empty(t, s.PointersForLead("c"))
	assert.Len(t, s.PointersForCompany("Acme"), 1)
	assert.Empty(t, s.PointersForCompany("Widgets"))
	assert.Len(t, s.Pointers(), 3)

	// Lead-scoped records never leak into a company view and vice versa.
	for _, p := range s.PointersForCompany("Acme") {
		assert.Empty(t, p.LeadID)
	}
}

func TestWrite_Concurrent(t *testing.T) {
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Write("get_company_news",
				map[string]any{"n": n}, map[string]any{"ok": true}, n, "", "Acme")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ptrs := s.PointersForCompany("Acme")
	require.Len(t, ptrs, 20)
	seen := make(map[uint64]bool)
	for _, p := range ptrs {
		assert.False(t, seen[p.Seq], "duplicate seq %d", p.Seq)
		seen[p.Seq] = true
	}
}

func TestRead_SkipsMissingAndCorrupt(t *testing.T) {
	s := newStore(t)
	addr, err := s.Write("get_company_funding", map[string]any{"company_name": "Acme"}, map[string]any{"total_funding": "$75M"}, 1, "", "Acme")
	require.NoError(t, err)

	corrupt := filepath.Join(s.Dir(), "corrupt_get_company_news_000000000000.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	recs := s.Read([]string{addr, corrupt, filepath.Join(s.Dir(), "missing.json")})
	require.Len(t, recs, 1)
	assert.Equal(t, "get_company_funding", recs[0].Operation)
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Write("get_linkedin_profile", map[string]any{"linkedin_url": "u1"}, "p1", 1, "a", "")
	require.NoError(t, err)
	_, err = s.Write("get_linkedin_company", map[string]any{"company_name": "Acme"}, "c1", 2, "", "Acme")
	require.NoError(t, err)
	_, err = s.Write("get_linkedin_activity", map[string]any{"linkedin_url": "u1"}, "act", 3, "a", "")
	require.NoError(t, err)
	before := s.Pointers()

	// Fresh store over the same directory, as after a restart.
	restored, err := New(dir, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, restored.Rebuild())

	if diff := cmp.Diff(before, restored.Pointers()); diff != "" {
		t.Errorf("pointer index mismatch after rebuild (-before +rebuilt):\n%s", diff)
	}

	// Sequence numbering resumes past the restored records.
	_, err = restored.Write("get_company_news", map[string]any{"company_name": "Acme"}, "n1", 4, "", "Acme")
	require.NoError(t, err)
	ptrs := restored.PointersForCompany("Acme")
	require.Len(t, ptrs, 2)
	assert.Equal(t, uint64(4), ptrs[1].Seq)
}

func TestRebuild_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Write("get_linkedin_profile", map[string]any{"linkedin_url": "u1"}, "p1", 1, "a", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("]["), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	require.NoError(t, s.Rebuild())
	assert.Len(t, s.Pointers(), 1)
}
