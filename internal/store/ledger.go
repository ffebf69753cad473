// Package store persists batch run history in SQLite so results survive the
// process. The context store holds raw research records; this ledger holds
// the per-run outcomes (task reports and qualified leads).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"prospector/internal/types"
)

// Ledger records batch runs in a local SQLite database.
type Ledger struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// Open initializes the ledger database at the given path, creating the
// directory and schema as needed.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		created_at      TIMESTAMP NOT NULL,
		campaign        TEXT NOT NULL,
		lead_count      INTEGER NOT NULL,
		qualified_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_reports (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		task_id     INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		description TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		error       TEXT,
		PRIMARY KEY (run_id, task_id)
	);

	CREATE TABLE IF NOT EXISTS lead_results (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		lead_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		company     TEXT,
		title       TEXT,
		score       INTEGER NOT NULL,
		priority    TEXT NOT NULL,
		has_copy    INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		PRIMARY KEY (run_id, lead_id)
	);

	CREATE INDEX IF NOT EXISTS idx_lead_results_company ON lead_results(company);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveRun writes one batch outcome in a single transaction.
func (l *Ledger) SaveRun(batch types.BatchResult, campaign string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, created_at, campaign, lead_count, qualified_count) VALUES (?, ?, ?, ?, ?)`,
		batch.RunID, time.Now().UTC(), campaign, len(batch.Leads), batch.QualifiedCount())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range batch.Reports {
		_, err = tx.Exec(
			`INSERT INTO task_reports (run_id, task_id, kind, description, ok, error) VALUES (?, ?, ?, ?, ?, ?)`,
			batch.RunID, r.TaskID, string(r.Kind), r.Description, boolInt(r.OK), r.Error)
		if err != nil {
			return fmt.Errorf("failed to insert task report: %w", err)
		}
	}

	for _, lead := range batch.Leads {
		resultJSON, err := json.Marshal(lead)
		if err != nil {
			return fmt.Errorf("failed to marshal lead result: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO lead_results (run_id, lead_id, name, company, title, score, priority, has_copy, result_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.RunID, lead.Lead.ID, lead.Lead.Name, lead.Lead.CompanyName, lead.Lead.Title,
			lead.Qualification.Score, lead.Qualification.Priority, boolInt(lead.Copy != nil), string(resultJSON))
		if err != nil {
			return fmt.Errorf("failed to insert lead result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	l.logger.Debug("run saved", zap.String("run", batch.RunID), zap.Int("leads", len(batch.Leads)))
	return nil
}

// RunSummary is one row of batch history.
type RunSummary struct {
	ID             string
	CreatedAt      time.Time
	Campaign       string
	LeadCount      int
	QualifiedCount int
}

// ListRuns returns the most recent runs, newest first.
func (l *Ledger) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(
		`SELECT id, created_at, campaign, lead_count, qualified_count FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Campaign, &r.LeadCount, &r.QualifiedCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads one run's full results.
func (l *Ledger) GetRun(runID string) (*types.BatchResult, error) {
	var exists int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	result := &types.BatchResult{RunID: runID}

	rows, err := l.db.Query(
		`SELECT task_id, kind, description, ok, error FROM task_reports WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task reports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r types.TaskReport
		var kind string
		var ok int
		var errText sql.NullString
		if err := rows.Scan(&r.TaskID, &kind, &r.Description, &ok, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan task report: %w", err)
		}
		r.Kind = types.TaskKind(kind)
		r.OK = ok != 0
		r.Error = errText.String
		result.Reports = append(result.Reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	leadRows, err := l.db.Query(
		`SELECT result_json FROM lead_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead results: %w", err)
	}
	defer leadRows.Close()
	for leadRows.Next() {
		var raw string
		if err := leadRows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan lead result: %w", err)
		}
		var lead types.QualifiedLead
		if err := json.Unmarshal([]byte(raw), &lead); err != nil {
			l.logger.Warn("corrupt lead result skipped", zap.String("run", runID), zap.Error(err))
			continue
		}
		result.Leads = append(result.Leads, lead)
	}
	return result, leadRows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
