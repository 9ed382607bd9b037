// Package history persists run outcomes to a local SQLite database so
// past generate and pair runs stay inspectable after their logs rotate.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"skupair/internal/batch"
	"skupair/internal/pairing"
)

// Run is one recorded run, generate or pair.
type Run struct {
	ID         string
	Kind       string // "generate" or "pair"
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Skipped    int
	Failed     int
	Degraded   bool
	Fatal      string
	ReportPath string
}

// TaskRecord is one order's terminal outcome within a run.
type TaskRecord struct {
	RunID        string
	OrderNo      string
	Status       string
	Reason       string
	Identifier   string
	SKU          string
	ArtifactPNG  string
	ArtifactHTML string
}

// Store is the append-only run history. It never participates in SKU
// uniqueness: the registry stays batch-scoped.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	log *zap.Logger
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		fatal TEXT NOT NULL DEFAULT '',
		report_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS run_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		order_no TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		sku TEXT NOT NULL DEFAULT '',
		artifact_png TEXT NOT NULL DEFAULT '',
		artifact_html TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_run_tasks_run ON run_tasks(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists a run and its task records in one transaction.
func (s *Store) RecordRun(run Run, tasks []TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, kind, started_at, finished_at, succeeded, skipped, failed, degraded, fatal, report_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt, run.FinishedAt,
		run.Succeeded, run.Skipped, run.Failed,
		boolToInt(run.Degraded), run.Fatal, run.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}

	for _, t := range tasks {
		_, err = tx.Exec(
			`INSERT INTO run_tasks (run_id, order_no, status, reason, identifier, sku, artifact_png, artifact_html)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, t.OrderNo, t.Status, t.Reason,
			t.Identifier, t.SKU, t.ArtifactPNG, t.ArtifactHTML,
		)
		if err != nil {
			return fmt.Errorf("failed to record task %s: %w", t.OrderNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	s.log.Debug("run recorded",
		zap.String("run_id", run.ID),
		zap.String("kind", run.Kind),
		zap.Int("tasks", len(tasks)))
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit means 20.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, kind, started_at, finished_at, succeeded, skipped, failed, degraded, fatal, report_path
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var degraded int
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt,
			&r.Succeeded, &r.Skipped, &r.Failed, &degraded, &r.Fatal, &r.ReportPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Degraded = degraded != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTasks returns every task record of one run in insertion order.
func (s *Store) RunTasks(runID string) ([]TaskRecord, error) {
	return s.queryTasks(
		`SELECT run_id, order_no, status, reason, identifier, sku, artifact_png, artifact_html
		 FROM run_tasks WHERE run_id = ? ORDER BY id`, runID)
}

// FailedTasks returns only the failed task records of one run.
func (s *Store) FailedTasks(runID string) ([]TaskRecord, error) {
	return s.queryTasks(
		`SELECT run_id, order_no, status, reason, identifier, sku, artifact_png, artifact_html
		 FROM run_tasks WHERE run_id = ? AND status = 'failed' ORDER BY id`, runID)
}

func (s *Store) queryTasks(query, runID string) ([]TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.RunID, &t.OrderNo, &t.Status, &t.Reason,
			&t.Identifier, &t.SKU, &t.ArtifactPNG, &t.ArtifactHTML); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// FromReport converts a pairing run report into history records.
func FromReport(rep *pairing.Report, reportPath string) (Run, []TaskRecord) {
	run := Run{
		ID:         rep.RunID,
		Kind:       "pair",
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Succeeded:  rep.Counts[pairing.StatusPaired.String()],
		Skipped:    rep.Counts[pairing.StatusSkipped.String()],
		Failed:     rep.Counts[pairing.StatusFailed.String()],
		Degraded:   rep.DegradedFilter,
		Fatal:      rep.FatalError,
		ReportPath: reportPath,
	}

	tasks := make([]TaskRecord, 0, len(rep.Tasks))
	for _, t := range rep.Tasks {
		reason := t.FailReason
		if reason == "" {
			reason = t.SkipReason
		}
		tasks = append(tasks, TaskRecord{
			RunID:        rep.RunID,
			OrderNo:      t.OrderNo,
			Status:       t.Status,
			Reason:       reason,
			Identifier:   t.Identifier,
			SKU:          t.SKU,
			ArtifactPNG:  t.ArtifactPNG,
			ArtifactHTML: t.ArtifactHTML,
		})
	}
	return run, tasks
}

// FromResults converts a batch generation outcome into history records.
// total is the number of rows read from the sheet; rows dropped by the
// engraved filter count as skipped.
func FromResults(runID string, startedAt, finishedAt time.Time, results []batch.ResultRow, total int, reportPath string) (Run, []TaskRecord) {
	run := Run{
		ID:         runID,
		Kind:       "generate",
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Skipped:    total - len(results),
		ReportPath: reportPath,
	}

	tasks := make([]TaskRecord, 0, len(results))
	for _, r := range results {
		rec := TaskRecord{
			RunID:      runID,
			OrderNo:    r.OrderNo,
			Status:     "generated",
			Identifier: r.Identifier,
			SKU:        r.SKU,
		}
		if r.Failed() {
			rec.Status = "failed"
			rec.Reason = r.Err
			run.Failed++
		} else {
			run.Succeeded++
		}
		tasks = append(tasks, rec)
	}
	return run, tasks
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
