package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and configures a database backend.
type Config struct {
	// Driver is detected from URL when empty or "auto".
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file for local mode.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

// Opener builds a Connection for one driver.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var openers = map[Driver]Opener{}

// RegisterDriver makes a driver available to NewConnection.
// Driver packages call it from init.
func RegisterDriver(driver Driver, open Opener) {
	openers[driver] = open
}

// NewConnection opens a connection for the configured driver.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.counsel/counsel.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".counsel", "counsel.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
