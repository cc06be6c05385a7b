package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/store"
	"github.com/farxc/orcamento-analytics/internal/store/storetest"
)

func record(period types.Period, ug string, credit float64) types.Record {
	rec := types.Record{}
	for _, c := range types.InsertColumns(types.RevenueBalance) {
		rec[c] = nil
	}
	rec["coexercicio"] = int64(period.Exercise)
	rec["inmes"] = int64(period.Month)
	rec["coug"] = ug
	rec["cocontacontabil"] = "621200000"
	rec["vacredito"] = credit
	rec["vadebito"] = 0.0
	rec["period"] = period.String()
	rec["signed_balance"] = credit
	return rec
}

func TestFactLifecycle(t *testing.T) {
	for name, open := range map[string]func(testing.TB) *store.Storage{
		"sqlite": storetest.SQLite,
		"duckdb": storetest.DuckDB,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			jul := types.Period{Exercise: 2025, Month: 7}
			aug := types.Period{Exercise: 2025, Month: 8}

			exists, err := s.Facts.PeriodExists(ctx, types.RevenueBalance, jul)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, s.Facts.EnsureTable(ctx, types.RevenueBalance, false))
			n, err := s.Facts.InsertChunk(ctx, types.RevenueBalance, []types.Record{
				record(jul, "1", 10), record(jul, "2", 20), record(aug, "1", 30),
			})
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			count, err := s.Facts.CountRows(ctx, types.RevenueBalance, jul)
			require.NoError(t, err)
			assert.EqualValues(t, 2, count)

			periods, err := s.Facts.Periods(ctx, types.RevenueBalance)
			require.NoError(t, err)
			assert.Equal(t, []types.Period{jul, aug}, periods)

			deleted, err := s.Facts.DeletePeriod(ctx, types.RevenueBalance, jul)
			require.NoError(t, err)
			assert.EqualValues(t, 2, deleted)

			rows, err := s.Backend.ExecuteQuery(ctx, "SELECT coug, signed_balance, data_carga FROM fato_saldo_receita")
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "1", rows[0].String("coug"))
			assert.InDelta(t, 30.0, rows[0].Float("signed_balance"), 1e-9)
			assert.True(t, rows[0].Has("data_carga"))
		})
	}
}

func TestInsertChunkIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	require.NoError(t, s.Facts.EnsureTable(ctx, types.RevenueBalance, false))

	bad := record(types.Period{Exercise: 2025, Month: 7}, "2", 1)
	bad["coug"] = nil // NOT NULL
	_, err := s.Facts.InsertChunk(ctx, types.RevenueBalance, []types.Record{
		record(types.Period{Exercise: 2025, Month: 7}, "1", 1), bad,
	})
	require.Error(t, err)

	count, err := s.Facts.CountRows(ctx, types.RevenueBalance, types.Period{Exercise: 2025, Month: 7})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDimensionReplace(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	cols := []types.Column{{Name: "coug", Type: types.Text}, {Name: "noug", Type: types.Text, Nullable: true}}

	require.NoError(t, s.Dimensions.Replace(ctx, store.DimensionTable{
		Name: "dim_ug", Columns: cols, Rows: [][]any{{"1", "Reitoria"}, {"2", "Campus"}},
	}))
	require.NoError(t, s.Dimensions.CreateUniqueIndex(ctx, "dim_ug", "coug"))

	err := s.Dimensions.Replace(ctx, store.DimensionTable{
		Name: "dim_ug", Columns: cols, Rows: [][]any{{"3"}},
	})
	require.Error(t, err)

	rows, err := s.Backend.ExecuteQuery(ctx, "SELECT coug, noug FROM dim_ug ORDER BY coug")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reitoria", rows[0].String("noug"))

	info, err := s.Dimensions.Columns(ctx, "dim_ug")
	require.NoError(t, err)
	require.Len(t, info, 2)
	assert.Equal(t, "coug", info[0].Name)

	exists, err := s.Dimensions.Exists(ctx, "dim_ug__staging")
	require.NoError(t, err)
	assert.False(t, exists)
}
