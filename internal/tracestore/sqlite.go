package tracestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tomasbasham/rtkernel"

	_ "modernc.org/sqlite"
)

// Ensure SQLiteStore implements [Store].
var _ Store = (*SQLiteStore)(nil)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath. Use
// ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "tracestore"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// SaveRun stores a run and its events in one transaction. An empty run ID is
// filled with a new identifier, and a zero CreatedAt with the current time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, events []rtkernel.Event) error {
	if run.ID == "" {
		run.ID = "run_" + uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID, "events", len(events))

	faults := run.Faults
	if faults == nil {
		faults = []string{}
	}
	faultsJSON, err := json.Marshal(faults)
	if err != nil {
		return fmt.Errorf("marshal faults: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, ticks, config, output, faults, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, int64(run.Ticks), run.Config, run.Output, string(faultsJSON),
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, tick, kind, task, other, prio_from, prio_to, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		_, err := stmt.ExecContext(ctx, run.ID, i, int64(e.Tick), e.Kind.String(), e.Task, e.Other,
			int(e.From), int(e.To), e.Reason)
		if err != nil {
			return fmt.Errorf("insert event %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given ID, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, ticks, config, output, faults, created_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "limit", limit)
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario, ticks, config, output, faults, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListEvents returns the events of a run in recording order, optionally
// restricted to one kind.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, kind *rtkernel.EventKind) ([]rtkernel.Event, error) {
	s.logger.Debug("sql", "op", "select", "table", "events", "run_id", runID)

	query := `SELECT tick, kind, task, other, prio_from, prio_to, reason FROM events WHERE run_id = ?`
	args := []any{runID}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, kind.String())
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []rtkernel.Event
	for rows.Next() {
		var e rtkernel.Event
		var tick int64
		var kindName string
		var from, to int
		if err := rows.Scan(&tick, &kindName, &e.Task, &e.Other, &from, &to, &e.Reason); err != nil {
			return nil, err
		}
		if err := e.Kind.UnmarshalText([]byte(kindName)); err != nil {
			return nil, fmt.Errorf("event of run %s: %w", runID, err)
		}
		e.Tick = uint64(tick)
		e.From, e.To = rtkernel.Priority(from), rtkernel.Priority(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var ticks int64
	var faultsJSON, createdAt string
	if err := sc.Scan(&run.ID, &run.Scenario, &ticks, &run.Config, &run.Output, &faultsJSON, &createdAt); err != nil {
		return nil, err
	}
	run.Ticks = uint64(ticks)
	if err := json.Unmarshal([]byte(faultsJSON), &run.Faults); err != nil {
		return nil, fmt.Errorf("unmarshal faults of run %s: %w", run.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of run %s: %w", run.ID, err)
	}
	run.CreatedAt = t
	return &run, nil
}
