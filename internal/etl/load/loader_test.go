package load

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
	"github.com/farxc/orcamento-analytics/internal/store/storetest"
)

const revenueHeader = "COEXERCICIO;INMES;COUG;COCONTACONTABIL;COCONTACORRENTE;VACREDITO;VADEBITO"

type fakeCache struct{ bumps int }

func (f *fakeCache) Bump(context.Context) error { f.bumps++; return nil }

type fakeRecorder struct{ inserted int64 }

func (f *fakeRecorder) ObserveLoad(_ string, inserted, _ int64, _ int, _ time.Duration) {
	f.inserted += inserted
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saldo_receita.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func revenueRow(month int, ug string, credit, debit float64) string {
	return fmt.Sprintf("2025;%d;%s;621200000;11125001100000000;%.2f;%.2f", month, ug, credit, debit)
}

type stored struct {
	UG     string
	Credit float64
	Signed float64
}

func rowsFor(t *testing.T, s *store.Storage, period string) []stored {
	t.Helper()
	rows, err := s.Backend.ExecuteQuery(context.Background(),
		"SELECT coug, vacredito, signed_balance FROM fato_saldo_receita WHERE period = ? ORDER BY coug, vacredito", period)
	require.NoError(t, err)
	out := make([]stored, len(rows))
	for i, r := range rows {
		out[i] = stored{UG: r.String("coug"), Credit: r.Float("vacredito"), Signed: r.Float("signed_balance")}
	}
	return out
}

func newLoader(t *testing.T, s *store.Storage, opts ...Option) *Loader {
	return New(types.RevenueBalance, s, logger.Discard(), opts...)
}

func TestSinglePeriodRevenueLoad(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	history, err := state.Open(t.TempDir())
	require.NoError(t, err)
	cache := &fakeCache{}
	rec := &fakeRecorder{}
	l := newLoader(t, s, WithHistory(history), WithInvalidator(cache), WithRecorder(rec))

	file := writeCSV(t, revenueHeader,
		revenueRow(7, "1", 100, 0), revenueRow(7, "2", 200, 0), revenueRow(7, "3", 300, 50))

	res, err := l.Load(ctx, file, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Inserted)
	assert.Equal(t, []string{"2025-07"}, res.Periods)
	assert.False(t, res.Incomplete)

	got := rowsFor(t, s, "2025-07")
	require.Len(t, got, 3)
	assert.Equal(t, []float64{100, 200, 250}, []float64{got[0].Signed, got[1].Signed, got[2].Signed})

	exists, err := l.PeriodExists(ctx, types.Period{Exercise: 2025, Month: 7})
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := history.History(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fato_saldo_receita", entries[0].Table)
	assert.Equal(t, "sqlite", entries[0].Backend)
	assert.EqualValues(t, 3, entries[0].Rows)
	assert.Equal(t, 1, cache.bumps)
	assert.EqualValues(t, 3, rec.inserted)
}

func TestOverwriteSemantics(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	l := newLoader(t, s)

	fileA := writeCSV(t, revenueHeader,
		revenueRow(6, "A", 1, 0), revenueRow(7, "A", 2, 0), revenueRow(7, "A", 3, 0))
	fileB := writeCSV(t, revenueHeader,
		revenueRow(7, "B", 10, 0), revenueRow(8, "B", 20, 0))

	_, err := l.Load(ctx, fileA, Options{})
	require.NoError(t, err)

	_, err = l.Load(ctx, fileB, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPeriodExists))
	assert.Len(t, rowsFor(t, s, "2025-08"), 0, "refused job must not write")

	res, err := l.Load(ctx, fileB, Options{Overwrite: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Deleted)
	assert.Equal(t, []string{"2025-07", "2025-08"}, res.Periods)

	assert.Equal(t, []stored{{"A", 1, 1}}, rowsFor(t, s, "2025-06"))
	assert.Equal(t, []stored{{"B", 10, 10}}, rowsFor(t, s, "2025-07"))
	assert.Equal(t, []stored{{"B", 20, 20}}, rowsFor(t, s, "2025-08"))
}

func TestIdempotence(t *testing.T) {
	ctx := context.Background()
	file := writeCSV(t, revenueHeader,
		revenueRow(6, "1", 1, 0), revenueRow(7, "1", 2, 0), revenueRow(7, "2", 3, 1))

	baseline := storetest.SQLite(t)
	_, err := newLoader(t, baseline).Load(ctx, file, Options{})
	require.NoError(t, err)

	t.Run("overwrite reload", func(t *testing.T) {
		s := storetest.SQLite(t)
		l := newLoader(t, s)
		_, err := l.Load(ctx, file, Options{})
		require.NoError(t, err)
		_, err = l.Load(ctx, file, Options{Overwrite: true})
		require.NoError(t, err)
		for _, p := range []string{"2025-06", "2025-07"} {
			assert.Equal(t, rowsFor(t, baseline, p), rowsFor(t, s, p))
		}
	})

	t.Run("delete then reload", func(t *testing.T) {
		s := storetest.SQLite(t)
		l := newLoader(t, s)
		_, err := l.Load(ctx, file, Options{})
		require.NoError(t, err)
		for _, p := range []types.Period{{Exercise: 2025, Month: 6}, {Exercise: 2025, Month: 7}} {
			_, err := l.DeletePeriod(ctx, p)
			require.NoError(t, err)
		}
		_, err = l.Load(ctx, file, Options{})
		require.NoError(t, err)
		for _, p := range []string{"2025-06", "2025-07"} {
			assert.Equal(t, rowsFor(t, baseline, p), rowsFor(t, s, p))
		}
	})
}

func TestMissingInputs(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	l := newLoader(t, s)

	_, err := l.Load(ctx, filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.ErrorIs(t, err, ErrFileNotFound)

	file := writeCSV(t, "COEXERCICIO;INMES;COUG", "2025;7;1")
	_, err = l.Load(ctx, file, Options{})
	assert.ErrorIs(t, err, ErrMissingColumn)
	exists, err := s.Facts.TableExists(ctx, types.RevenueBalance)
	require.NoError(t, err)
	assert.False(t, exists, "nothing may be written before validation")
}

func TestFailedChunkIsCountedAndOthersContinue(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	l := newLoader(t, s)

	file := writeCSV(t, revenueHeader,
		revenueRow(7, "1", 1, 0), revenueRow(7, "2", 2, 0),
		"2025;13;3;621200000;x;3;0", revenueRow(7, "4", 4, 0),
		revenueRow(7, "5", 5, 0))

	res, err := l.Load(ctx, file, Options{ChunkSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Inserted)
	assert.Equal(t, 1, res.FailedChunks)
	assert.EqualValues(t, 2, res.FailedRows)
	assert.True(t, res.Incomplete)

	got := rowsFor(t, s, "2025-07")
	assert.Equal(t, []string{"1", "2", "5"}, []string{got[0].UG, got[1].UG, got[2].UG})
}

func TestRecreateDropsTable(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	l := newLoader(t, s)

	_, err := l.Load(ctx, writeCSV(t, revenueHeader, revenueRow(5, "1", 1, 0)), Options{})
	require.NoError(t, err)
	_, err = l.Load(ctx, writeCSV(t, revenueHeader, revenueRow(6, "1", 1, 0)), Options{Recreate: true})
	require.NoError(t, err)

	assert.Empty(t, rowsFor(t, s, "2025-05"))
	assert.Len(t, rowsFor(t, s, "2025-06"), 1)
}

func TestCancelledLoadWritesNothing(t *testing.T) {
	s := storetest.SQLite(t)
	l := newLoader(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, writeCSV(t, revenueHeader, revenueRow(7, "1", 1, 0)), Options{})
	require.Error(t, err)
	n, err := s.Facts.CountRows(context.Background(), types.RevenueBalance, types.Period{Exercise: 2025, Month: 7})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()
	s := storetest.SQLite(t)
	l := newLoader(t, s)

	lines := []string{revenueHeader}
	for i := 0; i < 50; i++ {
		lines = append(lines, revenueRow(6+i%2, "1", float64(i), 0))
	}
	file := writeCSV(t, lines...)

	a, err := l.Analyze(ctx, file, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, a.SampledRows)
	assert.Equal(t, []string{"2025-06", "2025-07"}, a.Periods)
	assert.False(t, a.Exact)
	assert.Greater(t, a.EstimatedRows, int64(10))
	assert.Empty(t, a.Existing)

	_, err = l.Load(ctx, file, Options{})
	require.NoError(t, err)
	a, err = l.Analyze(ctx, file, 0)
	require.NoError(t, err)
	assert.True(t, a.Exact)
	assert.EqualValues(t, 50, a.EstimatedRows)
	assert.Equal(t, []string{"2025-06", "2025-07"}, a.Existing)

	a, err = l.Analyze(ctx, writeCSV(t, "COEXERCICIO;INMES", "2025;1"), 0)
	require.NoError(t, err)
	assert.Contains(t, a.Missing, "vacredito")
}

func TestLedgerLoadOnDuckDB(t *testing.T) {
	ctx := context.Background()
	s := storetest.DuckDB(t)
	l := New(types.ExpenseLedger, s, logger.Discard())

	file := writeCSV(t,
		"COEXERCICIO;COUG;NUDOCUMENTO;NULANCAMENTO;VALANCAMENTO;INDEBITOCREDITO;DALANCAMENTO;COEVENTO;COCONTACONTABIL;COCONTACORRENTE",
		"2025;154043;2025NE000001;1;1.500,00;D;03/02/2025;401091;622130000;12600012364501320RK000110000000033903001",
		"2025;154043;2025NE000001;2;500,00;C;28/02/2025;401091;622130000;12600012364501320RK000110000000033903001",
	)
	res, err := l.Load(ctx, file, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Inserted)
	assert.Equal(t, []string{"2025-02"}, res.Periods)

	rows, err := s.Backend.ExecuteQuery(ctx, "SELECT SUM(valancamento) AS total, MAX(conatureza) AS nat FROM fato_lancamento_despesa WHERE period = ?", "2025-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 2000.0, rows[0].Float("total"), 1e-9)
	assert.Equal(t, "339030", rows[0].String("nat"))
}
