// Package storetest opens throwaway embedded backends for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/store"
)

// SQLite returns a storage backed by a fresh SQLite file under t.TempDir().
func SQLite(t testing.TB) *store.Storage {
	t.Helper()
	conn, err := db.NewSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	b := store.NewBackend(conn, db.SQLite, logger.Discard())
	t.Cleanup(func() { b.Close() })
	return store.NewStorage(b)
}

// DuckDB returns a storage backed by a fresh DuckDB file under t.TempDir().
func DuckDB(t testing.TB) *store.Storage {
	t.Helper()
	conn, err := db.NewDuckDB(filepath.Join(t.TempDir(), "test.duckdb"))
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	b := store.NewBackend(conn, db.DuckDB, logger.Discard())
	t.Cleanup(func() { b.Close() })
	return store.NewStorage(b)
}
