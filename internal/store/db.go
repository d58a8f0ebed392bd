// Package store provides the persistence adapters behind auth.Store:
// postgres for production, sqlite for single-node deployments, and an
// in-memory map for tests and local hacking. The adapter is selected by the
// DB_ADAPTER setting.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/authgate/internal/auth"
)

// timestamp layout used by the sqlite adapter; postgres has real
// timestamptz columns.
const sqliteTimeLayout = time.RFC3339Nano

// Open returns the configured adapter. Postgres schemas are owned by
// migrations, which the caller runs beforehand; sqlite creates its own
// schema on open.
func Open(adapter, sqliteFile, postgresDSN string) (auth.Store, error) {
	switch adapter {
	case "sqlite":
		return NewSQLiteStore(sqliteFile)
	case "postgres":
		return NewPostgresStore(postgresDSN)
	case "memory":
		return NewMemStore(), nil
	}
	return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", adapter)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTimeString(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(sqliteTimeLayout)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func noRowsAsNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
