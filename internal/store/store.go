// Package store persists agent runs and their steps for later inspection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one agent task from start to stop.
type Run struct {
	ID         string
	Task       string
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      int
	Done       bool
	Success    bool
	Reason     string
}

// Step is one recorded attempt at a loop iteration. A failed decision and
// the retry that follows share Number but get distinct Attempts. Output and
// Results hold JSON.
type Step struct {
	RunID    string
	Attempt  int
	Number   int
	App      string
	Output   string
	Results  string
	Failure  string
	Recorded time.Time
}

// Journal writes runs and steps to a SQL database.
type Journal struct {
	db       *sql.DB
	log      *zap.Logger
	postgres bool
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, logger *zap.Logger, cfg config.JournalConfig) (*Journal, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		db, err = openSQLite(cfg.Path)
	case "postgres":
		db, err = sql.Open("pgx", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{db: db, log: logger.Named("store"), postgres: cfg.Driver == "postgres"}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func openSQLite(path string) (*sql.DB, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// One writer avoids SQLITE_BUSY between the loop and the CLI.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT,
			steps INTEGER NOT NULL DEFAULT 0,
			done INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			step INTEGER NOT NULL,
			app TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			results TEXT NOT NULL DEFAULT '',
			failure TEXT NOT NULL DEFAULT '',
			recorded_at BIGINT NOT NULL,
			PRIMARY KEY (run_id, attempt)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (j *Journal) rebind(query string) string {
	if !j.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BeginRun records the start of a run.
func (j *Journal) BeginRun(ctx context.Context, id, task string, at time.Time) error {
	_, err := j.db.ExecContext(ctx, j.rebind(`INSERT INTO runs (id, task, started_at) VALUES (?, ?, ?)`),
		id, task, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	return nil
}

// RecordStep appends one attempt to a run. Attempts are numbered from 1 in
// recording order and s.Attempt is ignored; earlier rows are never replaced.
func (j *Journal) RecordStep(ctx context.Context, s Step) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			j.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	var runs int
	if err := tx.QueryRowContext(ctx, j.rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), s.RunID).Scan(&runs); err != nil {
		return fmt.Errorf("look up run %s: %w", s.RunID, err)
	}
	if runs == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, s.RunID)
	}

	var attempt int
	if err := tx.QueryRowContext(ctx, j.rebind(`SELECT COALESCE(MAX(attempt), 0) + 1 FROM steps WHERE run_id = ?`),
		s.RunID).Scan(&attempt); err != nil {
		return fmt.Errorf("next attempt of %s: %w", s.RunID, err)
	}

	query := `INSERT INTO steps (run_id, attempt, step, app, output, results, failure, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, j.rebind(query),
		s.RunID, attempt, s.Number, s.App, s.Output, s.Results, s.Failure, s.Recorded.UnixMilli()); err != nil {
		return fmt.Errorf("insert step %d of %s: %w", s.Number, s.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, j.rebind(`UPDATE runs SET steps = (SELECT COUNT(DISTINCT step) FROM steps WHERE run_id = ?) WHERE id = ?`),
		s.RunID, s.RunID); err != nil {
		return fmt.Errorf("update run %s: %w", s.RunID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FinishRun records how a run ended.
func (j *Journal) FinishRun(ctx context.Context, id string, done, success bool, reason string, at time.Time) error {
	res, err := j.db.ExecContext(ctx, j.rebind(`UPDATE runs SET finished_at = ?, done = ?, success = ?, reason = ? WHERE id = ?`),
		at.UnixMilli(), boolInt(done), boolInt(success), reason, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT id, task, started_at, finished_at, steps, done, success, reason
		FROM runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r             Run
			started       int64
			finished      sql.NullInt64
			done, success int
		)
		if err := rows.Scan(&r.ID, &r.Task, &started, &finished, &r.Steps, &done, &success, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		r.Done, r.Success = done != 0, success != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns every recorded attempt of one run in recording order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT run_id, attempt, step, app, output, results, failure, recorded_at
		FROM steps WHERE run_id = ? ORDER BY attempt`), runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			s  Step
			at int64
		)
		if err := rows.Scan(&s.RunID, &s.Attempt, &s.Number, &s.App, &s.Output, &s.Results, &s.Failure, &at); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		s.Recorded = time.UnixMilli(at)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
