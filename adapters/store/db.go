package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tamcal/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the fit database and applies the schema. driver is
// "postgres" or "sqlite"; a SQLite URL is a file path or ":memory:".
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == "sqlite" && url != ":memory:" && !strings.HasPrefix(url, "file:") {
		if err := os.MkdirAll(filepath.Dir(url), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("[Store] %s database ready (schema %s)", driver, runner.Version())
	return db, nil
}
