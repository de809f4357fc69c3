// Package history keeps a SQLite record of backup cycles
package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/pders01/clawkeep/internal/models"
)

// ErrNoRuns is returned by Last when nothing has been recorded yet
var ErrNoRuns = errors.New("no recorded backup runs")

// NewID returns a time-ordered cycle ID
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Store persists cycle records
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status      TEXT NOT NULL,
		committed   INTEGER NOT NULL DEFAULT 0,
		pushed      INTEGER NOT NULL DEFAULT 0,
		snapshot    TEXT,
		pruned      INTEGER NOT NULL DEFAULT 0,
		issues      TEXT,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one cycle; an empty ID is assigned from the start time
func (s *Store) Record(ctx context.Context, run models.Run) (models.Run, error) {
	if run.ID == "" {
		run.ID = NewID(run.StartedAt)
	}

	var issues sql.NullString
	if len(run.Issues) > 0 {
		data, err := json.Marshal(run.Issues)
		if err != nil {
			return run, fmt.Errorf("failed to encode issues: %w", err)
		}
		issues = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, status, committed, pushed, snapshot, pruned, issues, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(run.Status),
		run.Committed,
		run.Pushed,
		nullString(run.Snapshot),
		run.Pruned,
		issues,
		nullString(run.Error),
	)
	if err != nil {
		return run, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit cycles, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, committed, pushed, snapshot, pruned, issues, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Last returns the most recent cycle
func (s *Store) Last(ctx context.Context) (models.Run, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil {
		return models.Run{}, err
	}
	if len(runs) == 0 {
		return models.Run{}, ErrNoRuns
	}
	return runs[0], nil
}

func scanRun(rows *sql.Rows) (models.Run, error) {
	var (
		run                 models.Run
		started, finished   string
		status              string
		snapshot, issues, e sql.NullString
	)
	if err := rows.Scan(&run.ID, &started, &finished, &status, &run.Committed, &run.Pushed,
		&snapshot, &run.Pruned, &issues, &e); err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return run, fmt.Errorf("invalid start time for run %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return run, fmt.Errorf("invalid finish time for run %s: %w", run.ID, err)
	}
	run.StartedAt = run.StartedAt.Local()
	run.FinishedAt = run.FinishedAt.Local()
	run.Status = models.RunStatus(status)
	run.Snapshot = snapshot.String
	run.Error = e.String
	if issues.Valid {
		if err := json.Unmarshal([]byte(issues.String), &run.Issues); err != nil {
			return run, fmt.Errorf("invalid issues for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
