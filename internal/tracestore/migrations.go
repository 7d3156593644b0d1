package tracestore

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tables. Each statement uses IF NOT EXISTS
// for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		scenario   TEXT NOT NULL,
		ticks      INTEGER NOT NULL,
		config     TEXT NOT NULL DEFAULT '',
		output     TEXT NOT NULL DEFAULT '',
		faults     TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		tick     INTEGER NOT NULL,
		kind     TEXT NOT NULL,
		task     TEXT NOT NULL,
		other    TEXT NOT NULL DEFAULT '',
		prio_from INTEGER NOT NULL DEFAULT 0,
		prio_to   INTEGER NOT NULL DEFAULT 0,
		reason   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_kind ON events(run_id, kind)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
