package migration

import (
	"context"

	"mmmstudio/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations. The statements stay
// within the SQL both PostgreSQL and SQLite accept.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createEditTransactionsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create edit_transactions table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

// Timestamps are unix milliseconds so both drivers scan them into int64.
func (r *MigrationRunner) createEditTransactionsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS edit_transactions (
			id VARCHAR(36) PRIMARY KEY,
			model_name VARCHAR(255) NOT NULL,
			mode VARCHAR(32) NOT NULL,
			variables TEXT NOT NULL,
			outcome VARCHAR(32) NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			draft_rows INTEGER NOT NULL DEFAULT 0,
			opened_at BIGINT NOT NULL,
			closed_at BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_edit_transactions_model_closed
		ON edit_transactions (model_name, closed_at)
	`)
	return err
}
