package dims

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
	"github.com/farxc/orcamento-analytics/internal/store/storetest"
)

func write(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func newLoader(t *testing.T) (*Loader, *store.Storage, *state.Store) {
	t.Helper()
	s := storetest.SQLite(t)
	st, err := state.Open(t.TempDir())
	require.NoError(t, err)
	return New(s, st, logger.Discard()), s, st
}

func names(t *testing.T, s *store.Storage, table, key string) map[string]string {
	t.Helper()
	rows, err := s.Backend.ExecuteQuery(context.Background(), "SELECT * FROM "+table)
	require.NoError(t, err)
	out := map[string]string{}
	for _, r := range rows {
		for col := range r {
			if col != key {
				out[r.String(key)] = r.String(col)
			}
		}
	}
	return out
}

func TestScoreColumn(t *testing.T) {
	tests := []struct {
		name       string
		uniqueness float64
		want       int
	}{
		{"cofuncao", 1.0, 8},
		{"id", 1.0, 9},
		{"ugid", 0.96, 4},
		{"nofuncao", 0.9, 1},
		{"nofuncao", 0.5, 0},
		{"coug", 0.81, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreColumn(tt.name, tt.uniqueness), tt.name)
	}
}

func TestDetectKey(t *testing.T) {
	df := dataframe.LoadRecords([][]string{
		{"nome", "cofuncao", "grupo"},
		{"Saúde", "10", "a"},
		{"Educação", "12", "a"},
		{"Saúde", "04", "b"},
	}, dataframe.DetectTypes(false))

	key, scores := DetectKey(df)
	assert.Equal(t, "cofuncao", key)
	require.Len(t, scores, 3)
	assert.Equal(t, 8, scores[0].Score)
	assert.InDelta(t, 1.0, scores[0].Uniqueness, 1e-9)
}

func TestLoadNewDimension(t *testing.T) {
	l, s, st := newLoader(t)
	ctx := context.Background()
	file := write(t, t.TempDir(), "dim_funcao.csv", "COFUNCAO;NOFUNCAO", "04;Administração", "10;Saúde")

	res, err := l.Load(ctx, Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, state.StatusNew, res.Status)
	assert.Equal(t, "dim_funcao", res.Table)
	assert.Equal(t, "cofuncao", res.Key)
	assert.Equal(t, 2, res.Rows)
	assert.False(t, res.IndexSkipped)
	assert.False(t, res.Replaced)

	assert.Equal(t, map[string]string{"04": "Administração", "10": "Saúde"}, names(t, s, "dim_funcao", "cofuncao"))

	m, ok, err := st.Mapping(file)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dim_funcao", m.Table)
	assert.Equal(t, "cofuncao", m.Key)
	assert.EqualValues(t, 2, m.RowCount)

	hist, err := st.History(0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, state.ActionDimension, hist[0].Action)
}

func TestReloadLifecycle(t *testing.T) {
	l, s, _ := newLoader(t)
	ctx := context.Background()
	dir := t.TempDir()
	file := write(t, dir, "dim_funcao.csv", "COFUNCAO;NOFUNCAO", "04;Administração")

	_, err := l.Load(ctx, Request{File: file})
	require.NoError(t, err)

	res, err := l.Load(ctx, Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, state.StatusUnchanged, res.Status)
	assert.True(t, res.Skipped)

	write(t, dir, "dim_funcao.csv", "COFUNCAO;NOFUNCAO", "04;Administração Geral", "10;Saúde")
	_, err = l.Load(ctx, Request{File: file})
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, map[string]string{"04": "Administração"}, names(t, s, "dim_funcao", "cofuncao"))

	res, err = l.Load(ctx, Request{File: file, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, state.StatusModified, res.Status)
	assert.True(t, res.Replaced)
	assert.Equal(t, map[string]string{"04": "Administração Geral", "10": "Saúde"}, names(t, s, "dim_funcao", "cofuncao"))

	require.NoError(t, s.Dimensions.Drop(ctx, "dim_funcao"))
	status, _, _, err := l.Inspect(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, state.StatusTableDeleted, status)

	res, err = l.Load(ctx, Request{File: file})
	require.NoError(t, err)
	assert.False(t, res.Replaced)
	assert.Len(t, names(t, s, "dim_funcao", "cofuncao"), 2)
}

func TestDuplicateKeysSkipIndex(t *testing.T) {
	l, s, _ := newLoader(t)
	file := write(t, t.TempDir(), "dim_programa.csv", "COPROGRAMA;NOPROGRAMA", "0001;A", "0001;B", "0002;C")

	res, err := l.Load(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.True(t, res.IndexSkipped)

	rows, err := s.Backend.ExecuteQuery(context.Background(), "SELECT COUNT(*) AS n FROM dim_programa")
	require.NoError(t, err)
	assert.Equal(t, 3, rows[0].Int("n"))
}

func TestTypeMismatchKeepsOldTable(t *testing.T) {
	l, s, _ := newLoader(t)
	ctx := context.Background()
	dir := t.TempDir()
	file := write(t, dir, "dim_fonte.csv", "COFONTE;NOFONTE;PESO", "100;Tesouro;1", "200;Próprios;2")
	_, err := l.Load(ctx, Request{File: file})
	require.NoError(t, err)

	write(t, dir, "dim_fonte.csv", "COFONTE;NOFONTE;PESO", "100;Tesouro;alto")
	_, err = l.Load(ctx, Request{File: file, Confirm: true})
	require.ErrorIs(t, err, ErrTypeMismatch)

	rows, err := s.Backend.ExecuteQuery(ctx, "SELECT cofonte, peso FROM dim_fonte ORDER BY cofonte")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Int("peso"))
}

func TestMissingFile(t *testing.T) {
	l, _, _ := newLoader(t)
	_, err := l.Load(context.Background(), Request{File: filepath.Join(t.TempDir(), "nada.csv")})
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestOverridesAndDerivedTable(t *testing.T) {
	l, _, _ := newLoader(t)
	file := write(t, t.TempDir(), "Cadastro UG 2025.csv", "NOUG;COUG;INTIPOADM", "Secretaria;150001;1", "Fundo;150002;6")

	res, err := l.Load(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, "dim_cadastro_ug_2025", res.Table)
	assert.Equal(t, "coug", res.Key)
	assert.NotEmpty(t, res.KeyScores)

	file2 := write(t, t.TempDir(), "x.csv", "A;B", "1;2")
	res, err = l.Load(context.Background(), Request{File: file2, Table: "dim_custom", Key: "B"})
	require.NoError(t, err)
	assert.Equal(t, "dim_custom", res.Table)
	assert.Equal(t, "b", res.Key)
}

func TestLoadDirectory(t *testing.T) {
	l, _, _ := newLoader(t)
	dir := t.TempDir()
	write(t, dir, "dim_funcao.csv", "COFUNCAO;NOFUNCAO", "10;Saúde")
	write(t, dir, "subfuncao.csv", "COSUBFUNCAO;NOSUBFUNCAO", "301;Atenção Básica")
	write(t, dir, "leia-me.txt", "ignored")
	write(t, dir, "notas.csv", "TITULO;TEXTO", "Carga;Arquivos de março")

	res, err := l.LoadDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []string{"dim_funcao", "dim_subfuncao"}, []string{res[0].Table, res[1].Table})

	res, err = l.LoadDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	for _, r := range res {
		assert.True(t, r.Skipped, r.File)
	}
}

func TestNonDimensionFiles(t *testing.T) {
	l, _, _ := newLoader(t)
	dir := t.TempDir()

	_, err := l.Load(context.Background(), Request{File: write(t, dir, "vazio.csv", "COUG;NOUG")})
	require.ErrorIs(t, err, ErrNotDimension)

	_, err = l.Load(context.Background(), Request{File: write(t, dir, "notas.csv", "TITULO;TEXTO", "a;b")})
	require.ErrorIs(t, err, ErrNotDimension)
}

func TestInferColumns(t *testing.T) {
	df := dataframe.LoadRecords([][]string{
		{"coug", "noug", "peso", "taxa", "incategoria"},
		{"001", "A", "1", "1,5", "3"},
		{"002", "B", "", "2", "4"},
	}, dataframe.DetectTypes(false))

	cols := InferColumns(df, "coug")
	got := map[string]types.ColumnType{}
	for _, c := range cols {
		got[c.Name] = c.Type
	}
	assert.Equal(t, map[string]types.ColumnType{
		"coug": types.Text, "noug": types.Text, "peso": types.BigInt, "taxa": types.Double, "incategoria": types.Text,
	}, got)
	assert.False(t, cols[0].Nullable)
}

func TestCatalogLookups(t *testing.T) {
	d, ok := ForFile("/x/FUNCAO.xlsx")
	require.True(t, ok)
	assert.Equal(t, "dim_funcao", d.Table)

	d, ok = ByKey("coug")
	require.True(t, ok)
	assert.Equal(t, "UG", d.Kind)

	seen := map[string]bool{}
	for _, d := range Catalog {
		assert.False(t, seen[d.Table], d.Table)
		seen[d.Table] = true
		assert.True(t, strings.HasPrefix(d.Table, "dim_"))
	}
	assert.GreaterOrEqual(t, len(Catalog), 20)
}
