package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/load"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store/storetest"
)

func write(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func find(t *testing.T, rep Report, fact, column string) Finding {
	t.Helper()
	for _, f := range rep.Findings {
		if f.Fact == fact && f.Column == column {
			return f
		}
	}
	t.Fatalf("no finding for %s.%s", fact, column)
	return Finding{}
}

func TestCatalogCoversFactColumns(t *testing.T) {
	assert.GreaterOrEqual(t, len(Catalog[types.ExpenseBalance]), 15)
	assert.GreaterOrEqual(t, len(Catalog[types.ExpenseLedger]), 15)
	for kind, rels := range Catalog {
		for _, r := range rels {
			assert.True(t, types.HasColumn(kind, r.Column), "%s.%s", kind, r.Column)
		}
	}
}

func TestRunReportsOrphans(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	st, err := state.Open(t.TempDir())
	require.NoError(t, err)

	facts := write(t, "saldo_receita.csv",
		"COEXERCICIO;INMES;COUG;COCONTACONTABIL;COCONTACORRENTE;VACREDITO;VADEBITO",
		"2025;1;150001;621200000;11125001100000000;10,00;0",
		"2025;1;150002;621200000;11125001100000000;20,00;0",
		"2025;2;150002;621200000;11125001100000000;30,00;0",
	)
	_, err = load.New(types.RevenueBalance, s, logger.Discard()).Load(ctx, facts, load.Options{})
	require.NoError(t, err)

	ug := write(t, "dim_unidade_gestora.csv", "COUG;NOUG", "150001;Secretaria")
	_, err = dims.New(s, st, logger.Discard()).Load(ctx, dims.Request{File: ug})
	require.NoError(t, err)

	rep, err := New(s, logger.Discard()).Run(ctx, types.RevenueBalance, types.ExpenseBalance)
	require.NoError(t, err)

	f := find(t, rep, "fato_saldo_receita", "coug")
	assert.Empty(t, f.Skipped)
	assert.EqualValues(t, 3, f.Total)
	assert.EqualValues(t, 2, f.Distinct)
	assert.EqualValues(t, 2, f.OrphanRows)
	assert.EqualValues(t, 1, f.OrphanValues)
	assert.Equal(t, []string{"150002"}, f.Samples)

	assert.Equal(t, SkipMissingDimension, find(t, rep, "fato_saldo_receita", "corubrica").Skipped)
	assert.Equal(t, SkipMissingFact, find(t, rep, "fato_saldo_despesa", "cofuncao").Skipped)

	require.Len(t, rep.Orphaned(), 1)
	script := rep.SQLScript()
	assert.Contains(t, script, `LEFT JOIN "dim_unidade_gestora" d ON f."coug" = d."coug"`)
	assert.Contains(t, script, `SELECT f."coug" AS code, COUNT(*) AS rows_affected FROM "fato_saldo_receita" f`)
	assert.Contains(t, script, `SELECT f.* FROM "fato_saldo_receita" f LEFT JOIN "dim_unidade_gestora" d`)
	assert.Contains(t, script, "LIMIT 20;")

	for _, q := range strings.Split(script, ";\n") {
		if i := strings.Index(q, "SELECT"); i >= 0 {
			_, err := s.Backend.ExecuteQuery(ctx, q[i:])
			require.NoError(t, err, q[i:])
		}
	}
	assert.NotContains(t, script, "corubrica")
}
