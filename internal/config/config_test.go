package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "/tmp/x.sqlite", cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 25, cfg.MaxOpenConns)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Config{Backend: "oracle"}
	assert.Error(t, cfg.Validate())
}
