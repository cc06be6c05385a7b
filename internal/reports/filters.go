package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/format"
	"github.com/farxc/orcamento-analytics/internal/query"
)

type UGOption struct {
	Code string `json:"codigo"`
	Name string `json:"nome"`
}

type FilterOptions struct {
	Years []int `json:"anos"`
	Year  int   `json:"ano"`
	// LatestMonth is the last month of Year with a non-zero balance.
	LatestMonth int        `json:"ultimo_mes"`
	UGs         []UGOption `json:"ugs"`
}

// FilterOptions lists the loaded years, the latest month with data and the
// UGs present in the balance tables. year 0 selects the latest year.
func (s *Service) FilterOptions(ctx context.Context, year int) (FilterOptions, error) {
	var opts FilterOptions
	years := map[int]bool{}
	ugs := map[string]bool{}
	var kinds []types.FactKind
	for _, k := range []types.FactKind{types.RevenueBalance, types.ExpenseBalance} {
		ok, err := s.storage.Facts.TableExists(ctx, k)
		if err != nil {
			return opts, err
		}
		if ok {
			kinds = append(kinds, k)
		}
	}

	for _, k := range kinds {
		rows, err := s.exec(ctx, &query.Select{
			Items:   []query.SelectItem{{Expr: query.C(types.ColExercise)}},
			From:    query.TableRef{Name: k.Table()},
			GroupBy: []query.Expr{query.C(types.ColExercise)},
		})
		if err != nil {
			return opts, err
		}
		for _, r := range rows {
			years[r.Int(types.ColExercise)] = true
		}
	}
	for y := range years {
		opts.Years = append(opts.Years, y)
	}
	sort.Ints(opts.Years)
	if year == 0 && len(opts.Years) > 0 {
		year = opts.Years[len(opts.Years)-1]
	}
	opts.Year = year
	if year == 0 {
		return opts, nil
	}

	for _, k := range kinds {
		rows, err := s.exec(ctx, &query.Select{
			Items: []query.SelectItem{{Expr: query.Func{Name: "MAX", Args: []query.Expr{query.C(types.ColMonth)}}, Alias: "ultimo_mes"}},
			From:  query.TableRef{Name: k.Table()},
			Where: query.And{
				query.Eq(query.C(types.ColExercise), query.Param{Value: year}),
				query.Cmp{Left: query.C(types.ColSignedBalance), Op: "<>", Right: query.Lit{Value: 0}},
			},
		})
		if err != nil {
			return opts, err
		}
		if len(rows) == 1 {
			if m := rows[0].Int("ultimo_mes"); m > opts.LatestMonth {
				opts.LatestMonth = m
			}
		}

		rows, err = s.exec(ctx, &query.Select{
			Items:   []query.SelectItem{{Expr: query.C(types.ColUG)}},
			From:    query.TableRef{Name: k.Table()},
			Where:   query.Eq(query.C(types.ColExercise), query.Param{Value: year}),
			GroupBy: []query.Expr{query.C(types.ColUG)},
		})
		if err != nil {
			return opts, err
		}
		for _, r := range rows {
			ugs[r.String(types.ColUG)] = true
		}
	}

	names, err := s.ugNames(ctx)
	if err != nil {
		return opts, err
	}
	for code := range ugs {
		opts.UGs = append(opts.UGs, UGOption{Code: code, Name: names[code]})
	}
	sort.Slice(opts.UGs, func(i, j int) bool { return opts.UGs[i].Code < opts.UGs[j].Code })
	return opts, nil
}

func (s *Service) ugNames(ctx context.Context) (map[string]string, error) {
	names := map[string]string{}
	d, _ := dims.ByKey(types.ColUG)
	ok, err := s.storage.Dimensions.Exists(ctx, d.Table)
	if err != nil || !ok {
		return names, err
	}
	rows, err := s.exec(ctx, &query.Select{
		Items: []query.SelectItem{{Expr: query.C(d.Key)}, {Expr: query.C(d.Name)}},
		From:  query.TableRef{Name: d.Table},
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		names[r.String(d.Key)] = format.DisplayName(r.String(d.Name))
	}
	return names, nil
}

// LedgerPageSize is the number of postings returned per request.
const LedgerPageSize = 1000

type LedgerParams struct {
	Kind    string `json:"tipo" validate:"required,oneof=despesa receita"`
	Year    int    `json:"ano" validate:"required,gte=2000,lte=2100"`
	Month   int    `json:"mes,omitempty" validate:"omitempty,gte=1,lte=12"`
	UG      string `json:"ug,omitempty" validate:"omitempty,numeric,max=6"`
	Account string `json:"conta,omitempty" validate:"omitempty,numeric,len=9"`
}

type Posting struct {
	Exercise       int     `json:"exercicio"`
	Month          int     `json:"mes"`
	UG             string  `json:"ug"`
	Document       string  `json:"documento"`
	Number         string  `json:"lancamento"`
	Date           string  `json:"data"`
	Value          float64 `json:"valor"`
	DebitCredit    string  `json:"debito_credito"`
	Event          string  `json:"evento"`
	Account        string  `json:"conta"`
	AccountCurrent string  `json:"conta_corrente"`
}

type LedgerPage struct {
	Postings []Posting `json:"lancamentos"`
	HasMore  bool      `json:"has_more"`
}

var ledgerColumns = []string{
	types.ColExercise, types.ColMonth, types.ColUG, types.ColDocument, types.ColPosting,
	types.ColPostingDate, types.ColPostingValue, types.ColDebitCredit, types.ColEvent,
	types.ColContabil, types.ColAccountCurrent,
}

// Ledger lists postings matching p. One row past the page is fetched to
// tell whether more exist.
func (s *Service) Ledger(ctx context.Context, p LedgerParams) (LedgerPage, error) {
	page := LedgerPage{Postings: []Posting{}}
	if err := validate.Struct(p); err != nil {
		return page, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	kind := types.ExpenseLedger
	if p.Kind == "receita" {
		kind = types.RevenueLedger
	}
	ok, err := s.storage.Facts.TableExists(ctx, kind)
	if err != nil || !ok {
		return page, err
	}

	where := query.And{query.Eq(query.C(types.ColExercise), query.Param{Value: p.Year})}
	if p.Month > 0 {
		where = append(where, query.Eq(query.C(types.ColMonth), query.Param{Value: p.Month}))
	}
	if p.UG != "" {
		where = append(where, query.Eq(query.C(types.ColUG), query.Param{Value: p.UG}))
	}
	if p.Account != "" {
		where = append(where, query.Eq(query.C(types.ColContabil), query.Param{Value: p.Account}))
	}
	stmt := &query.Select{
		From:  query.TableRef{Name: kind.Table()},
		Where: where,
		OrderBy: []query.Order{
			{Expr: query.C(types.ColPostingDate)},
			{Expr: query.C(types.ColDocument)},
			{Expr: query.C(types.ColPosting)},
		},
		Limit: LedgerPageSize + 1,
	}
	for _, c := range ledgerColumns {
		stmt.Items = append(stmt.Items, query.SelectItem{Expr: query.C(c)})
	}
	rows, err := s.exec(ctx, stmt)
	if err != nil {
		return page, err
	}
	if len(rows) > LedgerPageSize {
		page.HasMore = true
		rows = rows[:LedgerPageSize]
	}
	for _, r := range rows {
		page.Postings = append(page.Postings, Posting{
			Exercise:       r.Int(types.ColExercise),
			Month:          r.Int(types.ColMonth),
			UG:             r.String(types.ColUG),
			Document:       r.String(types.ColDocument),
			Number:         r.String(types.ColPosting),
			Date:           r.String(types.ColPostingDate),
			Value:          r.Float(types.ColPostingValue),
			DebitCredit:    r.String(types.ColDebitCredit),
			Event:          r.String(types.ColEvent),
			Account:        r.String(types.ColContabil),
			AccountCurrent: r.String(types.ColAccountCurrent),
		})
	}
	return page, nil
}
