// Package contextstore persists fetch results as content-addressed JSON
// records and serves them back by lead or by company without payload IO.
//
// Addressing is deterministic: the same (operation, arguments, scope) triple
// always lands at the same file, so re-running a fetch overwrites its prior
// record instead of accumulating duplicates. The pointer index lives in
// memory, is safe for concurrent writers, and can always be rebuilt by
// scanning the record directory.
package contextstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"prospector/internal/llm"
)

// Record is the persisted unit: one fetch outcome, success or error marker.
// Records are immutable once written; a repeated fetch replaces the whole
// file. Seq is the store-assigned write order and the tie-break key for
// aggregation. It is a counter, not wall-clock time; timestamps can collide
// under concurrent writes.
type Record struct {
	Operation   string         `json:"operation"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
	TaskID      int            `json:"task_id,omitempty"`
	LeadID      string         `json:"lead_id,omitempty"`
	Company     string         `json:"company,omitempty"`
	Seq         uint64         `json:"seq"`
	Result      any            `json:"result"`
}

// Pointer references one stored record without its payload.
type Pointer struct {
	Address     string
	Filename    string
	Operation   string
	Description string
	Args        map[string]any
	TaskID      int
	LeadID      string
	Company     string
	Seq         uint64
}

// Store is the content-addressed record store plus its in-memory index.
type Store struct {
	dir      string
	selector llm.Client
	logger   *zap.Logger

	mu       sync.RWMutex
	pointers []Pointer
	index    map[string]int // address -> position in pointers
	seq      uint64
}

// New creates a store rooted at dir, creating it if needed. The selector is
// the optional relevance-ranking collaborator; nil disables ranking and
// SelectRelevant returns its full candidate set.
func New(dir string, selector llm.Client, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create context dir: %w", err)
	}
	return &Store{
		dir:      dir,
		selector: selector,
		logger:   logger,
		index:    make(map[string]int),
	}, nil
}

// Dir returns the record directory.
func (s *Store) Dir() string { return s.dir }

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// canonicalArgs serializes args order-independently. encoding/json sorts map
// keys, which is exactly the stability we need.
func canonicalArgs(args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("arguments are not JSON-serializable: %w", err)
	}
	return string(b), nil
}

// Address computes the deterministic file path for a (operation, args, scope)
// triple. The scope (lead id or company) is folded into the hash so the same
// call made for different leads does not collide.
func (s *Store) Address(operation string, args map[string]any, leadID, company string) (string, error) {
	canonical, err := canonicalArgs(args)
	if err != nil {
		return "", err
	}
	scope := leadID
	if scope == "" {
		scope = company
	}

	sum := sha256.Sum256([]byte(operation + "|" + canonical + "|" + scope))
	hash := hex.EncodeToString(sum[:])[:12]

	var name string
	switch {
	case leadID != "":
		name = fmt.Sprintf("%s_%s_%s.json", sanitize(leadID), operation, hash)
	case company != "":
		name = fmt.Sprintf("%s_%s_%s.json", sanitize(company), operation, hash)
	default:
		name = fmt.Sprintf("%s_%s.json", operation, hash)
	}
	return filepath.Join(s.dir, name), nil
}

// describe builds the human-readable record description from the call shape.
func describe(operation string, args map[string]any) string {
	parts := []string{strings.ReplaceAll(operation, "_", " ")}
	if v, ok := args["linkedin_url"].(string); ok && v != "" {
		parts = append(parts, "for "+v)
	}
	if v, ok := args["company_name"].(string); ok && v != "" {
		parts = append(parts, "for "+v)
	}
	if v, ok := args["query"].(string); ok && v != "" {
		parts = append(parts, fmt.Sprintf("query=%q", v))
	}
	return strings.Join(parts, " ")
}

// Write persists one fetch result and indexes it. Writing the same
// (operation, args, scope) again overwrites the prior record and updates the
// existing pointer in place; the new write still gets a fresh sequence number
// so aggregation sees it as the latest. Write failures propagate to the
// caller.
func (s *Store) Write(operation string, args map[string]any, result any, taskID int, leadID, company string) (string, error) {
	addr, err := s.Address(operation, args, leadID, company)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := Record{
		Operation:   operation,
		Args:        args,
		Description: describe(operation, args),
		TaskID:      taskID,
		LeadID:      leadID,
		Company:     company,
		Seq:         s.seq,
		Result:      result,
	}

	if err := s.writeRecord(addr, rec); err != nil {
		s.seq--
		return "", err
	}

	ptr := Pointer{
		Address:     addr,
		Filename:    filepath.Base(addr),
		Operation:   operation,
		Description: rec.Description,
		Args:        args,
		TaskID:      taskID,
		LeadID:      leadID,
		Company:     company,
		Seq:         rec.Seq,
	}
	if pos, exists := s.index[addr]; exists {
		s.pointers[pos] = ptr
	} else {
		s.index[addr] = len(s.pointers)
		s.pointers = append(s.pointers, ptr)
	}

	s.logger.Debug("context record written",
		zap.String("operation", operation),
		zap.String("address", ptr.Filename),
		zap.Uint64("seq", rec.Seq))
	return addr, nil
}

// writeRecord writes the record atomically: temp file in the same directory,
// then rename. A cancelled or crashed batch never leaves a half-written
// record behind.
func (s *Store) writeRecord(addr string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmpName, addr); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to place record: %w", err)
	}
	return nil
}

// PointersForLead returns this lead's pointers in write order.
func (s *Store) PointersForLead(leadID string) []Pointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Pointer
	for _, p := range s.pointers {
		if p.LeadID == leadID && p.LeadID != "" {
			out = append(out, p)
		}
	}
	return out
}

// PointersForCompany returns this company's pointers in write order.
func (s *Store) PointersForCompany(company string) []Pointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Pointer
	for _, p := range s.pointers {
		if p.Company == company && p.Company != "" {
			out = append(out, p)
		}
	}
	return out
}

// Pointers returns every pointer in write order.
func (s *Store) Pointers() []Pointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pointer, len(s.pointers))
	copy(out, s.pointers)
	return out
}

// Read loads full records for the given addresses. A record that fails to
// load is skipped with a diagnostic rather than failing the read; aggregation
// has to degrade gracefully on partial data.
func (s *Store) Read(addresses []string) []Record {
	out := make([]Record, 0, len(addresses))
	for _, addr := range addresses {
		data, err := os.ReadFile(addr)
		if err != nil {
			s.logger.Warn("failed to load context record", zap.String("address", addr), zap.Error(err))
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("corrupt context record skipped", zap.String("address", addr), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Rebuild reconstructs the pointer index from the records on disk, restoring
// the index⇔disk invariant after a restart. Existing in-memory pointers are
// replaced. Unreadable files are skipped with a diagnostic.
func (s *Store) Rebuild() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan context dir: %w", err)
	}

	var ptrs []Pointer
	var maxSeq uint64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		addr := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(addr)
		if err != nil {
			s.logger.Warn("skipping unreadable record during rebuild", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping corrupt record during rebuild", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		ptrs = append(ptrs, Pointer{
			Address:     addr,
			Filename:    entry.Name(),
			Operation:   rec.Operation,
			Description: rec.Description,
			Args:        rec.Args,
			TaskID:      rec.TaskID,
			LeadID:      rec.LeadID,
			Company:     rec.Company,
			Seq:         rec.Seq,
		})
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
	}

	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i].Seq < ptrs[j].Seq })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointers = ptrs
	s.index = make(map[string]int, len(ptrs))
	for i, p := range ptrs {
		s.index[p.Address] = i
	}
	s.seq = maxSeq

	s.logger.Info("context index rebuilt", zap.Int("records", len(ptrs)))
	return nil
}
