// Package history archives finished plan runs to sqlite. The archive
// is append-only and observational; nothing is ever resumed from it.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/taskpilot/internal/plan"
)

type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the history database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		archived_at DATETIME NOT NULL,
		tasks_total INTEGER NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_archived ON runs(archived_at DESC);

	CREATE TABLE IF NOT EXISTS task_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		description TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		success INTEGER NOT NULL,
		output TEXT,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_results_run ON task_results(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveRun stores one plan's final state. Implements the
// controller.Archiver contract.
func (s *Store) ArchiveRun(p *plan.Plan) error {
	if p == nil {
		return nil
	}
	counts := plan.Tally(p)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	runID := uuid.New().String()
	_, err = tx.Exec(`
		INSERT INTO runs (id, plan_id, description, status, created_at, archived_at,
			tasks_total, tasks_completed, tasks_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, p.ID, p.Description, string(p.Status), p.CreatedAt, time.Now().UTC(),
		len(p.Tasks), counts.Completed, counts.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range p.Tasks {
		var success, attempts, durationMS int64
		var output, errMsg string
		if t.Result != nil {
			if t.Result.Success {
				success = 1
			}
			output = t.Result.Output
			errMsg = t.Result.Error
			attempts = int64(t.Result.Attempts)
			durationMS = t.Result.Duration.Milliseconds()
		}
		_, err = tx.Exec(`
			INSERT INTO task_results (id, run_id, task_id, description, kind, status,
				success, output, error, attempts, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, t.ID, t.Description, string(t.Kind),
			string(t.Status), success, output, errMsg, attempts, durationMS,
		)
		if err != nil {
			return fmt.Errorf("insert task result: %w", err)
		}
	}

	return tx.Commit()
}

// RunSummary is one archived run row.
type RunSummary struct {
	ID             string
	PlanID         string
	Description    string
	Status         string
	ArchivedAt     time.Time
	TasksTotal     int
	TasksCompleted int
	TasksFailed    int
}

// Recent returns the newest archived runs, newest first.
func (s *Store) Recent(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, plan_id, description, status, archived_at,
			tasks_total, tasks_completed, tasks_failed
		FROM runs ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.PlanID, &r.Description, &r.Status, &r.ArchivedAt,
			&r.TasksTotal, &r.TasksCompleted, &r.TasksFailed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
