// Package measures names the contabil-account ranges behind every reported
// figure. Reports refer to measures by name only.
package measures

import (
	"fmt"
	"sort"
	"strings"
)

// Side tells which balance table a measure reads.
type Side int

const (
	Revenue Side = iota
	Expense
)

func (s Side) String() string {
	if s == Revenue {
		return "receita"
	}
	return "despesa"
}

// Range is an inclusive span of 9-digit contabil accounts.
type Range struct {
	Lo string
	Hi string
}

func (r Range) contains(account string) bool {
	return len(account) == len(r.Lo) && account >= r.Lo && account <= r.Hi
}

type Measure struct {
	Name  string
	Label string
	Side  Side
	// Ranges and Accounts are alternatives: a row matches when its account
	// falls in any range or equals any listed account.
	Ranges   []Range
	Accounts []string
	// Category restricts the measure to one incategoria value.
	Category string
}

// contains reports whether a contabil account (and expense category) belongs
// to the measure.
func (m Measure) contains(account, category string) bool {
	if m.Category != "" && category != m.Category {
		return false
	}
	for _, r := range m.Ranges {
		if r.contains(account) {
			return true
		}
	}
	for _, a := range m.Accounts {
		if a == account {
			return true
		}
	}
	return false
}

const (
	ForecastInitial         = "forecast_initial"
	ForecastUpdated         = "forecast_updated"
	RevenueRealized         = "revenue_realized"
	AppropriationInitial    = "appropriation_initial"
	AppropriationAuthorized = "appropriation_authorized"
	Committed               = "committed"
	Liquidated              = "liquidated"
	Paid                    = "paid"
	ContingencyReserve      = "contingency_reserve"
)

// ReserveCategory is the expense category of the contingency reserve.
const ReserveCategory = "9"

// IntraModality identifies intra-budgetary transactions.
const IntraModality = "91"

var authorizedRanges = []Range{
	{"522110000", "522119999"},
	{"522120000", "522129999"},
	{"522150000", "522159999"},
	{"522190000", "522199999"},
}

// Catalog maps measure names to their definitions.
type Catalog map[string]Measure

// Default is the accounting measure catalog.
var Default = Catalog{
	ForecastInitial: {
		Name: ForecastInitial, Label: "Previsão Inicial", Side: Revenue,
		Ranges: []Range{{"521100000", "521199999"}},
	},
	ForecastUpdated: {
		Name: ForecastUpdated, Label: "Previsão Atualizada", Side: Revenue,
		Ranges: []Range{{"521100000", "521299999"}},
	},
	RevenueRealized: {
		Name: RevenueRealized, Label: "Receita Realizada", Side: Revenue,
		Ranges: []Range{{"621200000", "621399999"}},
	},
	AppropriationInitial: {
		Name: AppropriationInitial, Label: "Dotação Inicial", Side: Expense,
		Ranges: []Range{{"522110000", "522119999"}},
	},
	AppropriationAuthorized: {
		Name: AppropriationAuthorized, Label: "Dotação Atualizada", Side: Expense,
		Ranges: authorizedRanges,
	},
	Committed: {
		Name: Committed, Label: "Despesa Empenhada", Side: Expense,
		Ranges: []Range{{"622130000", "622139999"}},
	},
	Liquidated: {
		Name: Liquidated, Label: "Despesa Liquidada", Side: Expense,
		Accounts: []string{"622130300", "622130400", "622130700"},
	},
	Paid: {
		Name: Paid, Label: "Despesa Paga", Side: Expense,
		Accounts: []string{"622920104"},
	},
	ContingencyReserve: {
		Name: ContingencyReserve, Label: "Reserva de Contingência", Side: Expense,
		Ranges: authorizedRanges, Category: ReserveCategory,
	},
}

// Get returns the named measure.
func (c Catalog) Get(name string) (Measure, error) {
	m, ok := c[name]
	if !ok {
		return Measure{}, fmt.Errorf("unknown measure %q", name)
	}
	return m, nil
}

// Names lists the catalog's measure names, sorted.
func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for n := range c {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every range is well formed and every account is a
// 9-digit code.
func (c Catalog) Validate() error {
	for name, m := range c {
		if len(m.Ranges) == 0 && len(m.Accounts) == 0 {
			return fmt.Errorf("measure %s: no accounts", name)
		}
		for _, r := range m.Ranges {
			if !isAccount(r.Lo) || !isAccount(r.Hi) || r.Lo > r.Hi {
				return fmt.Errorf("measure %s: bad range %s-%s", name, r.Lo, r.Hi)
			}
		}
		for _, a := range m.Accounts {
			if !isAccount(a) {
				return fmt.Errorf("measure %s: bad account %q", name, a)
			}
		}
	}
	return nil
}

func isAccount(s string) bool {
	return len(s) == 9 && strings.Trim(s, "0123456789") == ""
}
