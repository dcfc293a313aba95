package database

import "strings"

// Driver identifies a database backend.
type Driver string

const (
	// DriverPostgres is PostgreSQL through pgx.
	DriverPostgres Driver = "postgres"
	// DriverSQLite is the embedded modernc SQLite driver.
	DriverSQLite Driver = "sqlite"
)

// String returns the driver name.
func (d Driver) String() string {
	return string(d)
}

// IsValid reports whether the driver is known.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// DetectDriver infers the driver from a connection string.
// An empty URL selects SQLite so the service runs with zero configuration.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"), strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	default:
		return DriverPostgres
	}
}

// SQLitePathFromURL strips the sqlite:// scheme from a URL.
func SQLitePathFromURL(url string) string {
	return strings.TrimPrefix(url, "sqlite://")
}
