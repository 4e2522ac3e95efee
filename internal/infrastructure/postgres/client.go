package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dashboard-api/internal/config"
	_ "github.com/lib/pq"
)

// Open creates a pooled connection handle to the primary store. The handle is
// lazy: no network I/O happens here, so an unreachable database does not
// prevent the process from starting in degraded mode.
func Open(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnsureSchema creates the users table if it does not exist. Best-effort at
// startup: callers log and continue on failure rather than exiting, since the
// fallback subsystem must keep working while the store is down.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS users (
			user_id         TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			password_hash   TEXT NOT NULL,
			display_name    TEXT NOT NULL,
			role            TEXT NOT NULL DEFAULT 'user',
			email_verified  BOOLEAN NOT NULL DEFAULT FALSE,
			admin_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}
