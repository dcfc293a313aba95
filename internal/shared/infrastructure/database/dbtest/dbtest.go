// Package dbtest opens migrated SQLite databases for repository tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/migrations"
)

// NewSQLite returns a connection to a fresh, fully migrated SQLite file.
func NewSQLite(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "counsel.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn.(*sqlite.Connection).DB(), database.DriverSQLite)
	require.NoError(t, err)
	return conn
}
