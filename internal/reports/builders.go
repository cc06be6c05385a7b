package reports

import (
	"context"
	"fmt"

	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/format"
	"github.com/farxc/orcamento-analytics/internal/hierarchy"
	"github.com/farxc/orcamento-analytics/internal/measures"
	"github.com/farxc/orcamento-analytics/internal/query"
	"github.com/farxc/orcamento-analytics/internal/store"
)

// Measure aliases as they appear in report rows.
const (
	colCurrentRevenue  = "receita_atual"
	colPreviousRevenue = "receita_anterior"
	colVariationAbs    = "variacao_absoluta"
	colVariationPct    = "variacao_percentual"

	colForecastInitial = "previsao_inicial"
	colForecastUpdated = "previsao_atualizada"
	colRevenueRealized = "receita_realizada"
	colRevenueBim      = "receita_bimestre"
	colRevenueToDate   = "receita_ate_bimestre"

	colAppropInitial = "dotacao_inicial"
	colAppropUpdated = "dotacao_atualizada"
	colCommitted     = "empenhado"
	colLiquidated    = "liquidado"
	colPaid          = "pago"
	colCommittedBim  = "empenhado_bimestre"
	colCommittedDate = "empenhado_ate_bimestre"
	colLiquidBim     = "liquidado_bimestre"
	colLiquidDate    = "liquidado_ate_bimestre"

	colExpenseCommitted  = "despesa_empenhada"
	colExpenseLiquidated = "despesa_liquidada"
	colExpensePaid       = "despesa_paga"

	colBalance = "saldo"
	colResult  = "resultado"
)

var (
	revenueCategory = level{column: types.ColRevenueCategory, order: revenueCategoryOrder}
	revenueOrigin   = level{column: types.ColRevenueOrigin}
	revenueSpecies  = level{column: types.ColRevenueSpecies}
	revenueAlinea   = level{column: types.ColRevenueAlinea}
	ugLevel         = level{column: types.ColUG}
	expenseCategory = level{column: types.ColCategory}
	expenseGroup    = level{column: types.ColGroup}
	expenseElement  = level{column: types.ColElement}
)

func (s *Service) revenueComparison(ctx context.Context, p Params) (*Report, error) {
	months := p.Cumulative()
	spec := query.ReportSpec{
		Fact: types.RevenueBalance,
		Measures: []query.Window{
			{Measure: measures.RevenueRealized, Alias: colCurrentRevenue, Months: months},
			{Measure: measures.RevenueRealized, Alias: colPreviousRevenue, Months: months, YearOffset: -1},
		},
		Filters: s.filters(p),
	}
	rows, levels, err := s.aggregate(ctx, spec, []level{revenueCategory, revenueOrigin, revenueSpecies})
	if err != nil {
		return nil, err
	}
	tree, err := hierarchy.Build(rows, hierarchy.Schema{Levels: levels, Measures: []string{colCurrentRevenue, colPreviousRevenue}},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colCurrentRevenue})
	if err != nil {
		return nil, err
	}
	tree.AddVariation(colCurrentRevenue, colPreviousRevenue, colVariationAbs, colVariationPct)
	tree.AppendTotal(hierarchy.LabelNetRevenue)

	cols := currency(
		[2]string{colCurrentRevenue, fmt.Sprintf("Receita %d", p.Year)},
		[2]string{colPreviousRevenue, fmt.Sprintf("Receita %d", p.Year-1)},
		[2]string{colVariationAbs, "Variação (R$)"},
	)
	cols = append(cols, Column{Key: colVariationPct, Label: "Variação (%)", Format: FormatPercent})

	rep := &Report{}
	rep.setSections(newSection("receitas", "Receitas", cols, tree))
	return rep, nil
}

func (s *Service) revenueBudget(ctx context.Context, p Params) (*Report, error) {
	spec := query.ReportSpec{
		Fact: types.RevenueBalance,
		Measures: []query.Window{
			{Measure: measures.ForecastInitial, Alias: colForecastInitial},
			{Measure: measures.ForecastUpdated, Alias: colForecastUpdated},
			{Measure: measures.RevenueRealized, Alias: colRevenueRealized},
		},
		Filters: s.filters(p),
	}
	rows, levels, err := s.aggregate(ctx, spec, []level{revenueCategory, revenueOrigin, revenueSpecies, revenueAlinea, ugLevel})
	if err != nil {
		return nil, err
	}
	tree, err := hierarchy.Build(rows, hierarchy.Schema{Levels: levels, Measures: []string{colForecastInitial, colForecastUpdated, colRevenueRealized}},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colRevenueRealized})
	if err != nil {
		return nil, err
	}
	derive(tree, colBalance, func(m map[string]float64) float64 { return m[colForecastUpdated] - m[colRevenueRealized] })
	tree.AppendTotal(hierarchy.LabelNetRevenue)

	rep := &Report{}
	rep.setSections(newSection("receitas", "Receitas", currency(
		[2]string{colForecastInitial, "Previsão Inicial"},
		[2]string{colForecastUpdated, "Previsão Atualizada"},
		[2]string{colRevenueRealized, "Receita Realizada"},
		[2]string{colBalance, "Saldo"},
	), tree))
	return rep, nil
}

func (s *Service) expenseBudget(ctx context.Context, p Params) (*Report, error) {
	spec := query.ReportSpec{
		Fact: types.ExpenseBalance,
		Measures: []query.Window{
			{Measure: measures.AppropriationInitial, Alias: colAppropInitial},
			{Measure: measures.AppropriationAuthorized, Alias: colAppropUpdated},
			{Measure: measures.Committed, Alias: colCommitted},
			{Measure: measures.Liquidated, Alias: colLiquidated},
			{Measure: measures.Paid, Alias: colPaid},
		},
		Filters: s.expenseFilters(p),
	}
	rows, levels, err := s.aggregate(ctx, spec, []level{expenseCategory, expenseGroup, expenseElement})
	if err != nil {
		return nil, err
	}
	ms := []string{colAppropInitial, colAppropUpdated, colCommitted, colLiquidated, colPaid}
	tree, err := hierarchy.Build(rows, hierarchy.Schema{Levels: levels, Measures: ms},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colCommitted})
	if err != nil {
		return nil, err
	}
	derive(tree, colBalance, func(m map[string]float64) float64 { return m[colAppropUpdated] - m[colCommitted] })
	tree.AppendTotal(hierarchy.LabelTotalExpenses)

	rep := &Report{}
	rep.setSections(newSection("despesas", "Despesas", currency(
		[2]string{colAppropInitial, "Dotação Inicial"},
		[2]string{colAppropUpdated, "Dotação Atualizada"},
		[2]string{colCommitted, "Despesa Empenhada"},
		[2]string{colLiquidated, "Despesa Liquidada"},
		[2]string{colPaid, "Despesa Paga"},
		[2]string{colBalance, "Saldo da Dotação"},
	), tree))
	return rep, nil
}

// RREO expense sections.
const (
	sectionColumn   = "secao"
	sectionNonIntra = "1"
	sectionIntra    = "2"
	sectionReserve  = "3"
)

var rreoSections = map[string]string{
	sectionNonIntra: "DESPESAS (EXCETO INTRA-ORÇAMENTÁRIAS)",
	sectionIntra:    "DESPESAS (INTRA-ORÇAMENTÁRIAS)",
	sectionReserve:  "RESERVA DE CONTINGÊNCIA",
}

func (s *Service) rreoAnnex1(ctx context.Context, p Params) (*Report, error) {
	b := p.ResolvedBimester()
	bim, err := types.BimesterMonths(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	cum := types.MonthRange(1, 2*b)

	revSpec := query.ReportSpec{
		Fact: types.RevenueBalance,
		Measures: []query.Window{
			{Measure: measures.ForecastInitial, Alias: colForecastInitial, Months: cum},
			{Measure: measures.ForecastUpdated, Alias: colForecastUpdated, Months: cum},
			{Measure: measures.RevenueRealized, Alias: colRevenueBim, Months: bim},
			{Measure: measures.RevenueRealized, Alias: colRevenueToDate, Months: cum},
		},
		Filters: query.Filters{Year: p.Year, Months: cum, UG: p.UG, RevenueType: p.RevenueType},
	}
	revRows, revLevels, err := s.aggregate(ctx, revSpec, []level{revenueCategory, revenueOrigin})
	if err != nil {
		return nil, err
	}
	revMeasures := []string{colForecastInitial, colForecastUpdated, colRevenueBim, colRevenueToDate}
	revenue, err := hierarchy.Build(revRows, hierarchy.Schema{Levels: revLevels, Measures: revMeasures},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colRevenueToDate})
	if err != nil {
		return nil, err
	}
	derive(revenue, colBalance, func(m map[string]float64) float64 { return m[colForecastUpdated] - m[colRevenueToDate] })
	revenue.AppendTotal(hierarchy.LabelNetRevenue)

	expWindows := func(excludeReserve bool) []query.Window {
		return []query.Window{
			{Measure: measures.AppropriationInitial, Alias: colAppropInitial, Months: cum, ExcludeReserve: excludeReserve},
			{Measure: measures.AppropriationAuthorized, Alias: colAppropUpdated, Months: cum, ExcludeReserve: excludeReserve},
			{Measure: measures.Committed, Alias: colCommittedBim, Months: bim, ExcludeReserve: excludeReserve},
			{Measure: measures.Committed, Alias: colCommittedDate, Months: cum, ExcludeReserve: excludeReserve},
			{Measure: measures.Liquidated, Alias: colLiquidBim, Months: bim, ExcludeReserve: excludeReserve},
			{Measure: measures.Liquidated, Alias: colLiquidDate, Months: cum, ExcludeReserve: excludeReserve},
		}
	}
	expFilters := func(scope query.ModalityScope) query.Filters {
		return query.Filters{Year: p.Year, Months: cum, UG: p.UG, Modality: scope}
	}
	parts := []struct {
		section string
		spec    query.ReportSpec
	}{
		{sectionNonIntra, query.ReportSpec{Fact: types.ExpenseBalance, Measures: expWindows(true), Filters: expFilters(query.ExcludeIntra)}},
		{sectionIntra, query.ReportSpec{Fact: types.ExpenseBalance, Measures: expWindows(false), Filters: expFilters(query.OnlyIntra)}},
		{sectionReserve, query.ReportSpec{Fact: types.ExpenseBalance, Measures: []query.Window{
			{Measure: measures.ContingencyReserve, Alias: colAppropUpdated, Months: cum},
		}, Filters: expFilters(query.ExcludeIntra)}},
	}
	var expRows []store.Row
	var expLevels []hierarchy.Level
	for _, part := range parts {
		rows, levels, err := s.aggregate(ctx, part.spec, []level{expenseCategory, expenseGroup})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			r[sectionColumn] = part.section
		}
		expRows = append(expRows, rows...)
		expLevels = levels
	}
	expLevels = append([]hierarchy.Level{{
		Key: sectionColumn, Labels: rreoSections, Order: []string{sectionNonIntra, sectionIntra, sectionReserve},
	}}, expLevels...)
	expMeasures := []string{colAppropInitial, colAppropUpdated, colCommittedBim, colCommittedDate, colLiquidBim, colLiquidDate}
	expense, err := hierarchy.Build(expRows, hierarchy.Schema{Levels: expLevels, Measures: expMeasures},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colCommittedDate})
	if err != nil {
		return nil, err
	}
	derive(expense, colBalance, func(m map[string]float64) float64 { return m[colAppropUpdated] - m[colCommittedDate] })
	expense.AppendTotal(hierarchy.LabelTotalExpenses)

	rev, exp := revenue.Totals[colRevenueToDate], expense.Totals[colCommittedDate]
	result := hierarchy.Balance(rev, exp, map[string]float64{
		colRevenueToDate: rev, colCommittedDate: exp, colResult: rev - exp,
	})

	rep := &Report{Result: result}
	rep.setSections(
		newSection("receitas", "Receitas", currency(
			[2]string{colForecastInitial, "Previsão Inicial"},
			[2]string{colForecastUpdated, "Previsão Atualizada"},
			[2]string{colRevenueBim, "Realizada no Bimestre"},
			[2]string{colRevenueToDate, "Realizada até o Bimestre"},
			[2]string{colBalance, "Saldo a Realizar"},
		), revenue),
		newSection("despesas", "Despesas", currency(
			[2]string{colAppropInitial, "Dotação Inicial"},
			[2]string{colAppropUpdated, "Dotação Atualizada"},
			[2]string{colCommittedBim, "Empenhado no Bimestre"},
			[2]string{colCommittedDate, "Empenhado até o Bimestre"},
			[2]string{colLiquidBim, "Liquidado no Bimestre"},
			[2]string{colLiquidDate, "Liquidado até o Bimestre"},
			[2]string{colBalance, "Saldo a Empenhar"},
		), expense),
	)

	n, err := s.reserveViolations(ctx, p.Year)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf(
			"%d linha(s) com categoria %s e modalidade %s: reserva de contingência intra-orçamentária", n, measures.ReserveCategory, measures.IntraModality))
	}
	return rep, nil
}

// reserveViolations counts expense rows that are both contingency reserve
// and intra-budgetary, which would be counted in two sections.
func (s *Service) reserveViolations(ctx context.Context, year int) (int, error) {
	const component = "Reports"
	ok, err := s.storage.Facts.TableExists(ctx, types.ExpenseBalance)
	if err != nil || !ok {
		return 0, err
	}
	stmt := &query.Select{
		Items: []query.SelectItem{{Expr: query.Func{Name: "COUNT", Args: []query.Expr{query.Star{}}}, Alias: "n"}},
		From:  query.TableRef{Name: types.ExpenseBalance.Table()},
		Where: query.And{
			query.Eq(query.C(types.ColExercise), query.Param{Value: year}),
			query.Eq(query.C(types.ColCategory), query.Lit{Value: measures.ReserveCategory}),
			query.Eq(query.C(types.ColModality), query.Lit{Value: measures.IntraModality}),
		},
	}
	rows, err := s.exec(ctx, stmt)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	n := rows[0].Int("n")
	if n > 0 {
		s.logger.Warn(component, "Contingency reserve rows marked intra-budgetary: year=%d rows=%d", year, n)
	}
	return n, nil
}

const (
	adminTypeColumn = "tipo_adm"
	ugNameColumn    = "nome_coug"
)

func (s *Service) generalBalance(ctx context.Context, p Params) (*Report, error) {
	ug, _ := dims.ByTable("dim_unidade_gestora")
	hasUG, err := s.storage.Dimensions.Exists(ctx, ug.Table)
	if err != nil {
		return nil, err
	}
	var joins []query.DimensionJoin
	if hasUG {
		joins = []query.DimensionJoin{{
			Table: ug.Table, Key: types.ColUG, DimKey: ug.Key,
			Columns: []query.JoinColumn{{Column: ug.Name, Alias: ugNameColumn}, {Column: dims.AdminTypeColumn, Alias: adminTypeColumn}},
		}}
	}
	specs := []query.ReportSpec{
		{
			Fact:     types.RevenueBalance,
			Measures: []query.Window{{Measure: measures.RevenueRealized, Alias: colRevenueRealized}},
			GroupBy:  []string{types.ColUG},
			Filters:  s.filters(p),
			Joins:    joins,
		},
		{
			Fact: types.ExpenseBalance,
			Measures: []query.Window{
				{Measure: measures.Committed, Alias: colExpenseCommitted},
				{Measure: measures.Liquidated, Alias: colExpenseLiquidated},
				{Measure: measures.Paid, Alias: colExpensePaid},
			},
			GroupBy: []string{types.ColUG},
			Filters: s.expenseFilters(p),
			Joins:   joins,
		},
	}
	var rows []store.Row
	for _, spec := range specs {
		spec.Catalog = s.catalog
		r, err := s.run(ctx, spec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}

	labels, err := s.adminTypeLabels(ctx)
	if err != nil {
		return nil, err
	}
	levels := []hierarchy.Level{
		{Key: adminTypeColumn, Kind: "Tipo de Administração", Labels: labels, Map: hierarchy.FoldAdminType},
		{Key: types.ColUG, Name: ugNameColumn, Kind: ug.Kind},
	}
	ms := []string{colRevenueRealized, colExpenseCommitted, colExpenseLiquidated, colExpensePaid}
	tree, err := hierarchy.Build(rows, hierarchy.Schema{Levels: levels, Measures: ms},
		hierarchy.Options{ExpandDepth: 1, ParticipationOf: colRevenueRealized})
	if err != nil {
		return nil, err
	}
	derive(tree, colResult, func(m map[string]float64) float64 { return m[colRevenueRealized] - m[colExpenseCommitted] })
	tree.AppendTotal(hierarchy.LabelTotal)

	rep := &Report{}
	rep.setSections(newSection("tipos", "Tipos de Administração", currency(
		[2]string{colRevenueRealized, "Receita Realizada"},
		[2]string{colExpenseCommitted, "Despesa Empenhada"},
		[2]string{colExpenseLiquidated, "Despesa Liquidada"},
		[2]string{colExpensePaid, "Despesa Paga"},
		[2]string{colResult, "Resultado"},
	), tree))
	return rep, nil
}

// adminTypeLabels reads administration-type names when that dimension is
// loaded. Unclassified UGs get their own label.
func (s *Service) adminTypeLabels(ctx context.Context) (map[string]string, error) {
	labels := map[string]string{"": "Não classificado"}
	d, _ := dims.ByTable("dim_tipo_administracao")
	ok, err := s.storage.Dimensions.Exists(ctx, d.Table)
	if err != nil || !ok {
		return labels, err
	}
	rows, err := s.exec(ctx, &query.Select{
		Items: []query.SelectItem{{Expr: query.C(d.Key)}, {Expr: query.C(d.Name)}},
		From:  query.TableRef{Name: d.Table},
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		labels[r.String(d.Key)] = format.DisplayName(r.String(d.Name))
	}
	return labels, nil
}
