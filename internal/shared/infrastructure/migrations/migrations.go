// Package migrations applies the embedded schema for the configured driver.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"  // database/sql driver "postgres"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// Open returns a database/sql handle suitable for Run.
func Open(cfg database.Config) (*sql.DB, database.Driver, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = database.DetectDriver(cfg.URL)
	}

	switch driver {
	case database.DriverPostgres:
		db, err := sql.Open("postgres", cfg.URL)
		return db, driver, err
	case database.DriverSQLite:
		path := cfg.SQLitePath
		if path == "" && cfg.URL != "" {
			path = database.SQLitePathFromURL(cfg.URL)
		}
		if path == "" {
			path = database.DefaultSQLitePath()
		}
		if err := database.EnsureDirectory(path); err != nil {
			return nil, driver, err
		}
		db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
		return db, driver, err
	default:
		return nil, driver, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Files lists the embedded .up.sql files for driver in apply order.
func Files(driver database.Driver) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, string(driver))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run applies pending migrations and returns the names that were applied.
// Applied versions are tracked in schema_migrations.
func Run(ctx context.Context, db *sql.DB, driver database.Driver) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := Files(driver)
	if err != nil {
		return nil, err
	}

	insert := `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
	lookup := `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`
	if driver == database.DriverPostgres {
		insert = `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`
		lookup = `SELECT COUNT(1) FROM schema_migrations WHERE version = $1`
	}

	var applied []string
	for _, file := range files {
		version := strings.TrimSuffix(file, ".up.sql")

		var count int
		if err := db.QueryRowContext(ctx, lookup, version).Scan(&count); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile(string(driver) + "/" + file)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, insert, version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}

	return applied, nil
}
