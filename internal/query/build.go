package query

import (
	"errors"
	"fmt"
	"sort"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/measures"
)

var ErrInvalidSpec = errors.New("invalid report spec")

// ModalityScope selects intra-budgetary rows (modality 91) in or out.
type ModalityScope int

const (
	IncludeAll ModalityScope = iota
	ExcludeIntra
	OnlyIntra
)

func ParseModalityScope(s string) (ModalityScope, error) {
	switch s {
	case "", "include_all", "todas":
		return IncludeAll, nil
	case "exclude_intra", "sem_intra":
		return ExcludeIntra, nil
	case "only_intra", "intra":
		return OnlyIntra, nil
	}
	return 0, fmt.Errorf("%w: modality scope %q", ErrInvalidSpec, s)
}

// Revenue types accepted by Filters.RevenueType, mapped to revenue categories.
var RevenueTypes = map[string][]string{
	"corrente": {"1"},
	"capital":  {"2"},
	"intra":    {"7", "8"},
}

// Window is one measure column: a catalog measure summed over a month window.
type Window struct {
	Measure string
	Alias   string
	// Months defaults to Filters.Months when empty.
	Months []int
	// YearOffset shifts the exercise, e.g. -1 for the previous year.
	YearOffset int
	Scope      ModalityScope
	// ExcludeReserve drops contingency-reserve rows (incategoria 9).
	ExcludeReserve bool
}

type Filters struct {
	Year int
	// Months and Bimester are alternatives; Bimester wins when set.
	Months      []int
	Bimester    int
	UG          string
	RevenueType string
	Modality    ModalityScope
}

// ResolvedMonths returns the filter's month list (whole year by default).
func (f Filters) ResolvedMonths() ([]int, error) {
	if f.Bimester != 0 {
		m, err := types.BimesterMonths(f.Bimester)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		return m, nil
	}
	if len(f.Months) == 0 {
		return types.MonthRange(1, 12), nil
	}
	for _, m := range f.Months {
		if m < 1 || m > 12 {
			return nil, fmt.Errorf("%w: month %d", ErrInvalidSpec, m)
		}
	}
	return f.Months, nil
}

// DimensionJoin resolves display columns for a group-by key.
type DimensionJoin struct {
	Table   string
	Key     string // aggregated column
	DimKey  string // dimension key column
	Columns []JoinColumn
}

type JoinColumn struct {
	Column string
	Alias  string
}

// ReportSpec describes one aggregated report query over a balance table.
type ReportSpec struct {
	Fact     types.FactKind
	Measures []Window
	GroupBy  []string
	Filters  Filters
	Joins    []DimensionJoin
	// KeepZero keeps groups whose every measure is zero.
	KeepZero bool
	Catalog  measures.Catalog
}

const aggName = "agg"

// Build turns a report spec into a statement of the shape
//
//	WITH agg AS (SELECT <group>, SUM(CASE WHEN <window> THEN signed_balance ELSE 0 END) AS <m> ...
//	             FROM <fact> WHERE <exercise> AND <account scope> AND <filters> GROUP BY <group>)
//	SELECT agg.*, <dimension names> FROM agg LEFT JOIN ... WHERE <any measure <> 0> ORDER BY <group>
func Build(spec ReportSpec) (*Select, error) {
	if !spec.Fact.IsBalance() {
		return nil, fmt.Errorf("%w: %s has no signed balance", ErrInvalidSpec, spec.Fact)
	}
	if spec.Filters.Year == 0 {
		return nil, fmt.Errorf("%w: year is required", ErrInvalidSpec)
	}
	if len(spec.Measures) == 0 {
		return nil, fmt.Errorf("%w: no measures", ErrInvalidSpec)
	}
	catalog := spec.Catalog
	if catalog == nil {
		catalog = measures.Default
	}
	months, err := spec.Filters.ResolvedMonths()
	if err != nil {
		return nil, err
	}
	for _, g := range spec.GroupBy {
		if !types.HasColumn(spec.Fact, g) {
			return nil, fmt.Errorf("%w: %s has no column %q", ErrInvalidSpec, spec.Fact.Table(), g)
		}
	}

	inner := &Select{From: TableRef{Name: spec.Fact.Table()}}
	for _, g := range spec.GroupBy {
		inner.Items = append(inner.Items, SelectItem{Expr: C(g)})
		inner.GroupBy = append(inner.GroupBy, C(g))
	}

	var scopes []Expr
	allMonths := map[int]bool{}
	years := map[int]bool{}
	for _, w := range spec.Measures {
		years[spec.Filters.Year+w.YearOffset] = true
	}
	aliases := make([]string, 0, len(spec.Measures))
	for _, w := range spec.Measures {
		m, err := catalog.Get(w.Measure)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		if (m.Side == measures.Revenue) != spec.Fact.IsRevenue() {
			return nil, fmt.Errorf("%w: measure %s does not apply to %s", ErrInvalidSpec, m.Name, spec.Fact.Table())
		}
		alias := w.Alias
		if alias == "" {
			alias = w.Measure
		}
		if !db.ValidIdent(alias) {
			return nil, fmt.Errorf("%w: alias %q", ErrInvalidSpec, alias)
		}
		wm := w.Months
		if len(wm) == 0 {
			wm = months
		}
		for _, mo := range wm {
			if mo < 1 || mo > 12 {
				return nil, fmt.Errorf("%w: month %d", ErrInvalidSpec, mo)
			}
			allMonths[mo] = true
		}
		cond := And{AccountCondition(m), In{Expr: C(types.ColMonth), Values: Ints(wm)}}
		if len(years) > 1 {
			cond = append(cond, Eq(C(types.ColExercise), Param{Value: spec.Filters.Year + w.YearOffset}))
		}
		if !spec.Fact.IsRevenue() {
			cond = append(cond, ModalityCondition(w.Scope)...)
			if w.ExcludeReserve {
				cond = append(cond, notEqualOrNull(types.ColCategory, measures.ReserveCategory))
			}
		}
		inner.Items = append(inner.Items, SelectItem{
			Expr:  Func{Name: "SUM", Args: []Expr{Case{When: cond, Then: C(types.ColSignedBalance), Else: Lit{Value: 0}}}},
			Alias: alias,
		})
		scopes = append(scopes, AccountCondition(m))
		aliases = append(aliases, alias)
	}

	where := And{}
	if len(years) == 1 {
		where = append(where, Eq(C(types.ColExercise), Param{Value: spec.Filters.Year + spec.Measures[0].YearOffset}))
	} else {
		var ys []Expr
		for _, y := range sortedKeys(years) {
			ys = append(ys, Param{Value: y})
		}
		where = append(where, In{Expr: C(types.ColExercise), Values: ys})
	}
	where = append(where, Or(scopes))
	where = append(where, In{Expr: C(types.ColMonth), Values: Ints(sortedKeys(allMonths))})
	if spec.Filters.UG != "" {
		where = append(where, Eq(C(types.ColUG), Param{Value: spec.Filters.UG}))
	}
	if spec.Filters.RevenueType != "" {
		if !spec.Fact.IsRevenue() {
			return nil, fmt.Errorf("%w: revenue type on %s", ErrInvalidSpec, spec.Fact.Table())
		}
		cats, ok := RevenueTypes[spec.Filters.RevenueType]
		if !ok {
			return nil, fmt.Errorf("%w: revenue type %q", ErrInvalidSpec, spec.Filters.RevenueType)
		}
		where = append(where, In{Expr: C(types.ColRevenueCategory), Values: Strs(cats...)})
	}
	if !spec.Fact.IsRevenue() {
		where = append(where, ModalityCondition(spec.Filters.Modality)...)
	}
	inner.Where = where

	outer := &Select{
		With:  []CTE{{Name: aggName, Select: inner}},
		Items: []SelectItem{{Expr: Star{Table: aggName}}},
		From:  TableRef{Name: aggName},
	}
	for i, j := range spec.Joins {
		if !contains(spec.GroupBy, j.Key) {
			return nil, fmt.Errorf("%w: join key %q is not grouped", ErrInvalidSpec, j.Key)
		}
		alias := fmt.Sprintf("d%d", i+1)
		outer.Joins = append(outer.Joins, Join{
			Table: TableRef{Name: j.Table, Alias: alias},
			On:    Eq(Col{Table: aggName, Name: j.Key}, Col{Table: alias, Name: j.DimKey}),
		})
		for _, c := range j.Columns {
			outer.Items = append(outer.Items, SelectItem{Expr: Col{Table: alias, Name: c.Column}, Alias: c.Alias})
		}
	}
	if !spec.KeepZero {
		var nz Or
		for _, a := range aliases {
			nz = append(nz, Cmp{Left: Col{Table: aggName, Name: a}, Op: "<>", Right: Lit{Value: 0}})
		}
		outer.Where = nz
	}
	for _, g := range spec.GroupBy {
		outer.OrderBy = append(outer.OrderBy, Order{Expr: Col{Table: aggName, Name: g}})
	}
	return outer, nil
}

// AccountCondition inlines a measure's account ranges and sets, plus its
// category restriction.
func AccountCondition(m measures.Measure) Expr {
	var or Or
	for _, r := range m.Ranges {
		or = append(or, Between{Expr: C(types.ColContabil), Lo: Lit{Value: r.Lo}, Hi: Lit{Value: r.Hi}})
	}
	if len(m.Accounts) > 0 {
		or = append(or, In{Expr: C(types.ColContabil), Values: Strs(m.Accounts...)})
	}
	if m.Category == "" {
		return or
	}
	return And{or, Eq(C(types.ColCategory), Lit{Value: m.Category})}
}

// ModalityCondition renders the intra-budgetary scope as zero or one predicates.
func ModalityCondition(scope ModalityScope) []Expr {
	switch scope {
	case ExcludeIntra:
		return []Expr{notEqualOrNull(types.ColModality, measures.IntraModality)}
	case OnlyIntra:
		return []Expr{Eq(C(types.ColModality), Lit{Value: measures.IntraModality})}
	}
	return nil
}

func notEqualOrNull(col, value string) Expr {
	return Or{IsNull{Expr: C(col)}, Cmp{Left: C(col), Op: "<>", Right: Lit{Value: value}}}
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
