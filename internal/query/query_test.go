package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/measures"
)

func revenueSpec() ReportSpec {
	return ReportSpec{
		Fact:     types.RevenueBalance,
		Measures: []Window{{Measure: measures.RevenueRealized, Alias: "receita"}},
		GroupBy:  []string{"cocategoriareceita"},
		Filters:  Filters{Year: 2025, Months: []int{1, 2}, UG: "154043"},
	}
}

const wantRevenueSQL = `WITH agg AS (
SELECT cocategoriareceita, SUM(CASE WHEN (cocontacontabil BETWEEN '621200000' AND '621399999' AND inmes IN (1, 2)) THEN signed_balance ELSE 0 END) AS receita
FROM fato_saldo_receita
WHERE (coexercicio = ? AND cocontacontabil BETWEEN '621200000' AND '621399999' AND inmes IN (1, 2) AND coug = ?)
GROUP BY cocategoriareceita
)
SELECT agg.*
FROM agg
WHERE agg.receita <> 0
ORDER BY agg.cocategoriareceita`

func TestEmitPositional(t *testing.T) {
	stmt, err := Build(revenueSpec())
	require.NoError(t, err)

	for _, d := range []db.Dialect{db.DuckDB, db.SQLite} {
		sql, args, err := Emit(stmt, d)
		require.NoError(t, err)
		assert.Equal(t, wantRevenueSQL, sql)
		assert.Equal(t, []any{2025, "154043"}, args)
	}
}

func TestEmitNamed(t *testing.T) {
	stmt, err := Build(revenueSpec())
	require.NoError(t, err)

	sql, args, err := Emit(stmt, db.Postgres)
	require.NoError(t, err)
	assert.Contains(t, sql, "coexercicio = :p1")
	assert.Contains(t, sql, "coug = :p2")
	assert.NotContains(t, sql, "?")
	assert.NotContains(t, sql, "::")
	assert.Equal(t, []any{2025, "154043"}, args)
}

func TestBimesterWindows(t *testing.T) {
	stmt, err := Build(ReportSpec{
		Fact: types.ExpenseBalance,
		Measures: []Window{
			{Measure: measures.AppropriationAuthorized, Alias: "dotacao", Months: types.MonthRange(1, 6)},
			{Measure: measures.Committed, Alias: "empenhado_bim"},
		},
		GroupBy: []string{"incategoria"},
		Filters: Filters{Year: 2025, Bimester: 3},
	})
	require.NoError(t, err)
	sql, _, err := Emit(stmt, db.DuckDB)
	require.NoError(t, err)

	dotacao := sql[:strings.Index(sql, "AS dotacao")]
	assert.Contains(t, dotacao[strings.LastIndex(dotacao, "SUM("):], "inmes IN (1, 2, 3, 4, 5, 6)")
	empenhado := sql[:strings.Index(sql, "AS empenhado_bim")]
	assert.Contains(t, empenhado[strings.LastIndex(empenhado, "SUM("):], "inmes IN (5, 6)")
	assert.Contains(t, sql, "WHERE (coexercicio = ?")
}

func TestWindowScopes(t *testing.T) {
	stmt, err := Build(ReportSpec{
		Fact: types.ExpenseBalance,
		Measures: []Window{
			{Measure: measures.Committed, Alias: "nao_intra", Scope: ExcludeIntra, ExcludeReserve: true},
			{Measure: measures.Committed, Alias: "intra", Scope: OnlyIntra},
			{Measure: measures.ContingencyReserve, Alias: "reserva"},
		},
		Filters: Filters{Year: 2025},
	})
	require.NoError(t, err)
	sql, _, err := Emit(stmt, db.SQLite)
	require.NoError(t, err)

	assert.Contains(t, sql, "(comodalidade IS NULL OR comodalidade <> '91')")
	assert.Contains(t, sql, "(incategoria IS NULL OR incategoria <> '9')")
	assert.Contains(t, sql, "comodalidade = '91'")
	assert.Contains(t, sql, "incategoria = '9'")
}

func TestPreviousYearWindow(t *testing.T) {
	stmt, err := Build(ReportSpec{
		Fact: types.RevenueBalance,
		Measures: []Window{
			{Measure: measures.RevenueRealized, Alias: "receita_atual"},
			{Measure: measures.RevenueRealized, Alias: "receita_anterior", YearOffset: -1},
		},
		Filters: Filters{Year: 2025, Months: []int{1, 2, 3}},
	})
	require.NoError(t, err)
	sql, args, err := Emit(stmt, db.Postgres)
	require.NoError(t, err)

	assert.Contains(t, sql, "coexercicio = :p1")
	assert.Contains(t, sql, "coexercicio = :p2")
	assert.Contains(t, sql, "coexercicio IN (:p3, :p4)")
	assert.Equal(t, []any{2025, 2024, 2024, 2025}, args)
}

func TestJoins(t *testing.T) {
	spec := revenueSpec()
	spec.Joins = []DimensionJoin{{
		Table: "dim_categoria_receita", Key: "cocategoriareceita", DimKey: "cocategoriareceita",
		Columns: []JoinColumn{{Column: "nocategoriareceita", Alias: "cocategoriareceita_nome"}},
	}}
	stmt, err := Build(spec)
	require.NoError(t, err)
	sql, _, err := Emit(stmt, db.DuckDB)
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT agg.*, d1.nocategoriareceita AS cocategoriareceita_nome")
	assert.Contains(t, sql, "LEFT JOIN dim_categoria_receita d1 ON agg.cocategoriareceita = d1.cocategoriareceita")
}

func TestInvalidSpecs(t *testing.T) {
	cases := map[string]func(*ReportSpec){
		"ledger fact":       func(s *ReportSpec) { s.Fact = types.RevenueLedger },
		"missing year":      func(s *ReportSpec) { s.Filters.Year = 0 },
		"unknown measure":   func(s *ReportSpec) { s.Measures[0].Measure = "nope" },
		"wrong side":        func(s *ReportSpec) { s.Measures[0].Measure = measures.Committed },
		"unknown column":    func(s *ReportSpec) { s.GroupBy = []string{"cofuncao"} },
		"bad month":         func(s *ReportSpec) { s.Filters.Months = []int{13} },
		"bad bimester":      func(s *ReportSpec) { s.Filters.Bimester = 7 },
		"bad revenue type":  func(s *ReportSpec) { s.Filters.RevenueType = "x" },
		"injected alias":    func(s *ReportSpec) { s.Measures[0].Alias = "x; drop" },
		"ungrouped join":    func(s *ReportSpec) { s.Joins = []DimensionJoin{{Table: "d", Key: "coug", DimKey: "coug"}} },
		"no measures":       func(s *ReportSpec) { s.Measures = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := revenueSpec()
			mutate(&spec)
			_, err := Build(spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSpec))
		})
	}
}

func TestLiteralEscapingAndEmptyIn(t *testing.T) {
	stmt := &Select{
		From: TableRef{Name: "t"},
		Where: And{
			Eq(C("a"), Lit{Value: "o'brien"}),
			In{Expr: C("b")},
		},
		Limit: 10,
	}
	sql, args, err := Emit(stmt, db.SQLite)
	require.NoError(t, err)
	assert.Equal(t, "SELECT *\nFROM t\nWHERE (a = 'o''brien' AND 1 = 0)\nLIMIT 10", sql)
	assert.Empty(t, args)

	_, _, err = Emit(&Select{From: TableRef{Name: "bad name"}}, db.SQLite)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestRevenueTypeFilter(t *testing.T) {
	spec := revenueSpec()
	spec.Filters.RevenueType = "intra"
	stmt, err := Build(spec)
	require.NoError(t, err)
	sql, _, err := Emit(stmt, db.SQLite)
	require.NoError(t, err)
	assert.Contains(t, sql, "cocategoriareceita IN ('7', '8')")
}
