package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/valter-silva-au/flow/pkg/models"
)

// RunsDBFile is the SQLite run history file inside the data directory.
const RunsDBFile = "runs.db"

const runsSchema = `CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	agent      TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	exit_code  INTEGER,
	output     TEXT NOT NULL DEFAULT '',
	cost_usd   REAL NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id, started_at);`

// SQLiteRunStore keeps run history in a SQLite database. It is selected with
// storage.runs_backend: sqlite.
type SQLiteRunStore struct {
	db *sql.DB
}

// OpenSQLiteRunStore creates or opens the database at path and ensures the
// schema exists.
func OpenSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(runsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing runs schema: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

// AppendRun inserts run. A duplicate run ID is rejected.
func (s *SQLiteRunStore) AppendRun(run models.Run) error {
	var endedAt, exitCode any
	if run.EndedAt != nil {
		endedAt = run.EndedAt.UnixNano()
	}
	if run.ExitCode != nil {
		exitCode = *run.ExitCode
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, task_id, agent, model, started_at, ended_at, exit_code, output, cost_usd, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.TaskID, run.Agent, run.Model, run.StartedAt.UnixNano(),
		endedAt, exitCode, run.Output, run.CostUSD, run.SessionID,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the runs for taskID ordered by start time. An empty taskID
// returns every run.
func (s *SQLiteRunStore) ListRuns(taskID string) ([]models.Run, error) {
	query := `SELECT run_id, task_id, agent, model, started_at, ended_at, exit_code, output, cost_usd, session_id FROM runs`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY started_at, rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var (
			run      models.Run
			started  int64
			endedAt  sql.NullInt64
			exitCode sql.NullInt64
		)
		if err := rows.Scan(&run.RunID, &run.TaskID, &run.Agent, &run.Model, &started,
			&endedAt, &exitCode, &run.Output, &run.CostUSD, &run.SessionID); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		if endedAt.Valid {
			t := time.Unix(0, endedAt.Int64).UTC()
			run.EndedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			run.ExitCode = &code
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Close releases the database handle.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}
