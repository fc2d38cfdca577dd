package migration

import (
	"context"

	"tamcal/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the fit storage schema. The statements are plain
// SQL accepted by both Postgres and SQLite.
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

// Run executes all database migrations in order; every step is idempotent
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createFitRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create fit_runs table")
	}

	if err := r.createFitResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create fit_results table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createFitRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fit_runs (
			id VARCHAR(36) PRIMARY KEY,
			settings TEXT NOT NULL,
			details TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createFitResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fit_results (
			id VARCHAR(36) PRIMARY KEY,
			run_id VARCHAR(36),
			problem VARCHAR(32) NOT NULL,
			loss DOUBLE PRECISION NOT NULL,
			evaluated INTEGER NOT NULL,
			excluded INTEGER NOT NULL,
			refined BOOLEAN NOT NULL DEFAULT FALSE,
			space_hash VARCHAR(64) NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_fit_results_problem ON fit_results(problem, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_fit_results_run ON fit_results(run_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
