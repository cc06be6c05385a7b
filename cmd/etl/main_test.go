package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/etl/audit"
	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/load"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/metrics"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store/storetest"
)

const revenueCSV = "COEXERCICIO;INMES;COUG;COCONTACONTABIL;COCONTACORRENTE;VACREDITO;VADEBITO\n" +
	"2025;7;150001;621200000;11125001100000000;100,00;0\n" +
	"2025;7;150002;621200000;11125001100000000;50,00;0\n"

func newCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	st, err := state.Open(t.TempDir())
	require.NoError(t, err)
	deps := &app.Deps{
		Config:  &config.Config{Backend: "sqlite"},
		Logger:  logger.Discard(),
		Storage: storetest.SQLite(t),
		State:   st,
		Metrics: metrics.New(),
	}
	out := &bytes.Buffer{}
	return &cli{deps: deps, out: out, logger: deps.Logger}, out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func decode[T any](t *testing.T, out *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	out.Reset()
	return v
}

func TestFactsAnalyzeAndReload(t *testing.T) {
	ctx := context.Background()
	c, out := newCLI(t)
	file := writeFile(t, t.TempDir(), "saldo_receita.csv", revenueCSV)

	require.NoError(t, c.run(ctx, []string{"analyze", file}))
	analyses := decode[[]load.Analysis](t, out)
	require.Len(t, analyses, 1)
	assert.Equal(t, []string{"2025-07"}, analyses[0].Periods)
	assert.Empty(t, analyses[0].Existing)
	assert.True(t, analyses[0].Exact)

	require.NoError(t, c.run(ctx, []string{"facts", file}))
	results := decode[[]load.Result](t, out)
	require.Len(t, results, 1)
	assert.Equal(t, "fato_saldo_receita", results[0].Table)
	assert.EqualValues(t, 2, results[0].Inserted)

	err := c.run(ctx, []string{"facts", file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files failed")
	out.Reset()

	require.NoError(t, c.run(ctx, []string{"facts", "-overwrite", "-kind", "saldo-receita", file}))
	results = decode[[]load.Result](t, out)
	require.Len(t, results, 1)
	assert.EqualValues(t, 2, results[0].Deleted)
	assert.EqualValues(t, 2, results[0].Inserted)

	hist, err := c.deps.State.History(0)
	require.NoError(t, err)
	require.NotEmpty(t, hist)
	assert.Equal(t, state.ActionOverwrite, hist[0].Action)
}

func TestFactsFromBundle(t *testing.T) {
	ctx := context.Background()
	c, out := newCLI(t)

	bundle := filepath.Join(t.TempDir(), "carga.zip")
	f, err := os.Create(bundle)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("saldo_receita.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(revenueCSV))
	require.NoError(t, err)
	_, err = zw.Create("LEIAME.pdf")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.NoError(t, c.run(ctx, []string{"facts", bundle}))
	results := decode[[]load.Result](t, out)
	require.Len(t, results, 1)
	assert.EqualValues(t, 2, results[0].Inserted)
}

func TestFactsSkipsMissingAndUnknownFiles(t *testing.T) {
	c, out := newCLI(t)
	dir := t.TempDir()
	unknown := writeFile(t, dir, "notas.csv", revenueCSV)

	err := c.run(context.Background(), []string{"facts", filepath.Join(dir, "saldo_despesa.csv"), unknown})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 files failed")
	assert.Equal(t, "null", strings.TrimSpace(out.String()))
}

func TestDeletePeriod(t *testing.T) {
	ctx := context.Background()
	c, out := newCLI(t)
	file := writeFile(t, t.TempDir(), "saldo_receita.csv", revenueCSV+
		"2025;8;150001;621200000;11125001100000000;10,00;0\n")
	require.NoError(t, c.run(ctx, []string{"facts", file}))
	out.Reset()

	err := c.run(ctx, []string{"delete-period", "-kind", "saldo-receita", "-period", "2025-07"})
	require.ErrorIs(t, err, errUsage)

	require.NoError(t, c.run(ctx, []string{"delete-period", "-kind", "saldo-receita", "-period", "2025-07", "-yes"}))
	res := decode[map[string]any](t, out)
	assert.EqualValues(t, 2, res["deleted"])
	assert.Equal(t, "2025-07", res["period"])
	assert.Equal(t, []any{"2025-08"}, res["loaded_periods"])

	require.NoError(t, c.run(ctx, []string{"delete-period", "-kind", "saldo-receita", "-period", "2025-07", "-yes"}))
	res = decode[map[string]any](t, out)
	assert.EqualValues(t, 0, res["deleted"])
}

func TestDimsThenAudit(t *testing.T) {
	ctx := context.Background()
	c, out := newCLI(t)
	dir := t.TempDir()

	require.NoError(t, c.run(ctx, []string{"facts", writeFile(t, dir, "saldo_receita.csv", revenueCSV)}))
	out.Reset()

	ug := writeFile(t, dir, "dim_unidade_gestora.csv", "COUG;NOUG\n150001;Secretaria\n")
	require.NoError(t, c.run(ctx, []string{"dims", ug}))
	loaded := decode[[]dims.Result](t, out)
	require.Len(t, loaded, 1)
	assert.Equal(t, "dim_unidade_gestora", loaded[0].Table)
	assert.Equal(t, 1, loaded[0].Rows)

	script := filepath.Join(dir, "orphans.sql")
	require.NoError(t, c.run(ctx, []string{"audit", "-kind", "saldo-receita", "-sql", script}))
	rep := decode[audit.Report](t, out)
	orphaned := rep.Orphaned()
	require.Len(t, orphaned, 1)
	assert.Equal(t, "coug", orphaned[0].Column)
	assert.Equal(t, []string{"150002"}, orphaned[0].Samples)

	sql, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "dim_unidade_gestora")
}

func TestUsageErrors(t *testing.T) {
	c, _ := newCLI(t)
	ctx := context.Background()

	cases := map[string][]string{
		"no command":      nil,
		"unknown command": {"publish"},
		"bad flag":        {"facts", "-nope"},
		"no facts input":  {"facts"},
		"bad kind":        {"facts", "-kind", "orcamento", "x.csv"},
		"negative chunk":  {"facts", "-chunk", "-1", "x.csv"},
		"queue no redis":  {"facts", "-queue", "x.csv"},
		"no dims input":   {"dims"},
		"table with many": {"dims", "-table", "dim_x", "a.csv", "b.csv"},
		"bad period":      {"delete-period", "-kind", "saldo-receita", "-period", "2025/07", "-yes"},
		"analyze no kind": {"analyze", "planilha.csv"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.run(ctx, args), errUsage)
		})
	}
}
