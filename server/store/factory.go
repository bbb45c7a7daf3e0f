package store

import (
	"fmt"
	"strings"
)

// DefaultSQLitePath is used when no DSN is configured.
const DefaultSQLitePath = "data/legalqa.db"

// NewQueryLog creates a query log based on the DSN.
// - Empty DSN: SQLite at data/legalqa.db
// - postgres:// or postgresql://: PostgreSQL
// - Anything else: SQLite at the specified path
func NewQueryLog(dsn string) (QueryLog, error) {
	if dsn == "" {
		return NewSQLiteQueryLog(DefaultSQLitePath)
	}

	if IsPostgresDSN(dsn) {
		ql, err := NewPostgresQueryLog(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return ql, nil
	}

	return NewSQLiteQueryLog(dsn)
}

func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
