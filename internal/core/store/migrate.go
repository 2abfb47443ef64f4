package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// migration is one idempotent schema step. Steps run in order on every Open.
type migration struct {
	name  string
	apply func(ctx context.Context, db *sql.DB) error
}

var migrations = []migration{
	{"executions", execAll(
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			skill TEXT NOT NULL,
			mode TEXT NOT NULL,
			user_id TEXT,
			requested_model TEXT NOT NULL,
			model TEXT,
			success INTEGER NOT NULL,
			error TEXT,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_skill ON executions(skill, started_at)`,
	)},
	{"executions.cached", addColumn("executions", "cached", "INTEGER NOT NULL DEFAULT 0")},
	{"executions.user_index", execAll(
		`CREATE INDEX IF NOT EXISTS idx_executions_user ON executions(user_id, started_at)`,
	)},
	{"response_cache", execAll(
		`CREATE TABLE IF NOT EXISTS response_cache (
			cache_key TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			response_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at)`,
	)},
}

// Migrate brings the schema up to date. Open calls it; running it again is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, m := range migrations {
		if err := m.apply(ctx, s.DB); err != nil {
			return fmt.Errorf("store migration %s: %w", m.name, err)
		}
	}
	return nil
}

func execAll(statements ...string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// addColumn adds column to table when an older database lacks it.
func addColumn(table, column, definition string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		exists, err := hasColumn(ctx, db, table, column)
		if err != nil || exists {
			return err
		}
		_, err = db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
		return err
	}
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
