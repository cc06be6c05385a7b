package store

import (
	"math/big"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/db"
)

func TestBindNamedForPostgres(t *testing.T) {
	b := &Backend{db: sqlx.NewDb(nil, "postgres"), dialect: db.Postgres}

	q, args, err := b.bind("SELECT * FROM t WHERE a = :p1 AND b IN (1, 2) AND c = :p2", []any{2025, "x"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN (1, 2) AND c = $2", q)
	assert.Equal(t, []any{2025, "x"}, args)
}

func TestBindPositionalPassesThrough(t *testing.T) {
	b := &Backend{db: sqlx.NewDb(nil, "duckdb"), dialect: db.DuckDB}

	q, args, err := b.bind("SELECT ? AS x", []any{1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT ? AS x", q)
	assert.Equal(t, []any{1}, args)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, int64(42), normalize(big.NewInt(42)))
	assert.Nil(t, normalize(nil))

	r := Row{"n": "12", "v": 1.5, "s": []byte(" x ")}
	assert.Equal(t, 12, r.Int("n"))
	assert.Equal(t, 1.5, r.Float("v"))
	assert.False(t, r.Has("missing"))
}
