package files

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestCSVLatin1Semicolon(t *testing.T) {
	text := "COUG;NOUG\n154043;Pró-Reitoria de Administração\n\n154044;Gestão\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	require.NoError(t, err)
	path := writeFile(t, "ug.csv", []byte(encoded))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"coug", "noug"}, r.Header())
	rows, err := ReadAll(r)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pró-Reitoria de Administração", rows[0]["noug"])
	assert.Equal(t, "Gestão", rows[1]["noug"])
}

func TestCSVUTF8CommaWithBOM(t *testing.T) {
	path := writeFile(t, "f.csv", []byte("\ufeffCOEXERCICIO, INMES ,VACREDITO\n2025,7,\"1.234,56\"\n2025,8\n"))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"coexercicio", "inmes", "vacredito"}, r.Header())
	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "1.234,56", row["vacredito"])

	row, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "", row["vacredito"])

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saldo.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"COEXERCICIO", "INMES", "COCONTACONTABIL"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{2025, 7, "621200000"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rows, err := ReadAll(r)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025", rows[0]["coexercicio"])
	assert.Equal(t, "621200000", rows[0]["cocontacontabil"])
}

func TestUnsupportedAndEmpty(t *testing.T) {
	_, err := Open(writeFile(t, "x.json", []byte("{}")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Open(writeFile(t, "empty.csv", nil))
	assert.Error(t, err)
}

func TestReadFrameKeepsLeadingZeros(t *testing.T) {
	path := writeFile(t, "fonte.csv", []byte("COFONTE;NOFONTE\n0100;Tesouro\n0250;Próprios\n"))

	df, err := ReadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, 2, df.Nrow())
	assert.Equal(t, "0100", df.Col("cofonte").Elem(0).String())
}

func TestUnzip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(zf)
	for name, body := range map[string]string{
		"saldo_receita_2025_07.csv": "COEXERCICIO\n2025\n",
		"LEIAME.pdf":                "x",
	} {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, zf.Close())

	res, err := Unzip(zipPath, filepath.Join(dir, "out"), logger.Discard())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, 1, res.Skipped)

	listed, err := ListSupported(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, res.Files, listed)
}

func TestUnzipRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(zf)
	fw, err := w.Create("../escape.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("a\n1\n"))
	require.NoError(t, w.Close())
	require.NoError(t, zf.Close())

	_, err = Unzip(zipPath, filepath.Join(dir, "out"), logger.Discard())
	assert.Error(t, err)
}

func TestKindFromName(t *testing.T) {
	cases := map[string]types.FactKind{
		"saldo_despesa_2025_07.csv":         types.ExpenseBalance,
		"SALDO-RECEITA-2025.xlsx":           types.RevenueBalance,
		"lancamentos_despesa_202508.csv":    types.ExpenseLedger,
		"inbox/lancamento_receita_2025.csv": types.RevenueLedger,
	}
	for name, want := range cases {
		got, ok := KindFromName(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := KindFromName("dim_ug.csv")
	assert.False(t, ok)
}

func TestHashFile(t *testing.T) {
	a := writeFile(t, "a.csv", []byte("x"))
	b := writeFile(t, "b.csv", []byte("y"))
	ha, err := HashFile(a)
	require.NoError(t, err)
	hb, err := HashFile(b)
	require.NoError(t, err)
	assert.Len(t, ha, 64)
	assert.NotEqual(t, ha, hb)
}
