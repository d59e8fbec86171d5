package db

import (
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// looksLikeSQLiteDSN reports whether a DSN targets a SQLite database rather
// than a network server.
func looksLikeSQLiteDSN(dsn string) bool {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "file:") || trimmed == ":memory:" {
		return true
	}
	if strings.Contains(trimmed, "://") {
		return strings.HasPrefix(trimmed, "sqlite://")
	}
	return strings.HasSuffix(trimmed, ".db") || strings.HasSuffix(trimmed, ".sqlite")
}
