// Package history keeps a local SQLite log of pipeline runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run statuses
const (
	StatusSucceeded = "succeeded"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
)

// RunRecord is one row of the run log.
type RunRecord struct {
	RunID         string        `json:"runId"`
	Fingerprint   string        `json:"fingerprint"`
	SourcePath    string        `json:"sourcePath,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	Status        string        `json:"status"`
	StagesRun     []string      `json:"stagesRun"`
	StagesSkipped []string      `json:"stagesSkipped"`
	Stale         bool          `json:"stale"`
	FailedStage   string        `json:"failedStage,omitempty"`
	Message       string        `json:"message,omitempty"`
	Recoverable   bool          `json:"recoverable,omitempty"`
}

// Recorder is what the orchestrator needs from the run log.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	fingerprint    TEXT NOT NULL,
	source_path    TEXT NOT NULL DEFAULT '',
	started_at     TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	status         TEXT NOT NULL,
	stages_run     TEXT NOT NULL DEFAULT '',
	stages_skipped TEXT NOT NULL DEFAULT '',
	stale          INTEGER NOT NULL DEFAULT 0,
	failed_stage   TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	recoverable    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Store is a Recorder backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the run log at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts rec, replacing any earlier row with the same run ID.
func (s *Store) Record(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT OR REPLACE INTO runs
			(run_id, fingerprint, source_path, started_at, duration_ms, status, stages_run, stages_skipped, stale, failed_stage, message, recoverable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Fingerprint,
		rec.SourcePath,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
		rec.Status,
		strings.Join(rec.StagesRun, ","),
		strings.Join(rec.StagesSkipped, ","),
		rec.Stale,
		rec.FailedStage,
		rec.Message,
		rec.Recoverable,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// List returns up to limit runs, most recent first. A limit of zero or
// less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, fingerprint, source_path, started_at, duration_ms, status, stages_run, stages_skipped, stale, failed_stage, message, recoverable
		FROM runs
		ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			startedAt  string
			durationMs int64
			run        string
			skipped    string
		)
		if err := rows.Scan(&rec.RunID, &rec.Fingerprint, &rec.SourcePath, &startedAt, &durationMs,
			&rec.Status, &run, &skipped, &rec.Stale, &rec.FailedStage, &rec.Message, &rec.Recoverable); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.StagesRun = splitList(run)
		rec.StagesSkipped = splitList(skipped)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
