package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/farxc/orcamento-analytics/internal/config"
)

// New opens the remote relational backend.
func New(addr string, maxOpenConns, maxIdleConns int, maxIdleTime string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	duration, err := time.ParseDuration(maxIdleTime)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(duration)

	return db, nil
}

// NewDuckDB opens (or creates) the embedded columnar file. An empty path
// opens an in-memory database.
func NewDuckDB(path string) (*sqlx.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb connector: %w", err)
	}
	return sqlx.NewDb(sql.OpenDB(connector), "duckdb"), nil
}

// NewSQLite opens (or creates) the embedded row-store file.
func NewSQLite(path string) (*sqlx.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// a single writer keeps the file lock uncontended
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Open picks the backend named by cfg.Backend.
func Open(cfg *config.Config) (*sqlx.DB, Dialect, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		conn, err := New(cfg.DBAddr, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.MaxIdleTime.String())
		return conn, Postgres, err
	case config.BackendSQLite:
		conn, err := NewSQLite(cfg.SQLitePath)
		return conn, SQLite, err
	case config.BackendDuckDB:
		conn, err := NewDuckDB(cfg.DuckDBPath)
		return conn, DuckDB, err
	}
	return nil, "", fmt.Errorf("unsupported backend %q", cfg.Backend)
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
