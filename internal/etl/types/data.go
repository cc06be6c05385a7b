package types

import (
	"fmt"
	"strings"
)

type FactKind int

const (
	ExpenseBalance FactKind = iota
	RevenueBalance
	ExpenseLedger
	RevenueLedger
)

// AllFactKinds lists the fact kinds in load order.
var AllFactKinds = []FactKind{ExpenseBalance, RevenueBalance, ExpenseLedger, RevenueLedger}

var FactKindNames = map[FactKind]string{
	ExpenseBalance: "Saldo Despesa",
	RevenueBalance: "Saldo Receita",
	ExpenseLedger:  "Lançamento Despesa",
	RevenueLedger:  "Lançamento Receita",
}

var factTables = map[FactKind]string{
	ExpenseBalance: "fato_saldo_despesa",
	RevenueBalance: "fato_saldo_receita",
	ExpenseLedger:  "fato_lancamento_despesa",
	RevenueLedger:  "fato_lancamento_receita",
}

var factSlugs = map[FactKind]string{
	ExpenseBalance: "saldo-despesa",
	RevenueBalance: "saldo-receita",
	ExpenseLedger:  "lancamento-despesa",
	RevenueLedger:  "lancamento-receita",
}

// Table is the destination table of the fact kind.
func (k FactKind) Table() string {
	return factTables[k]
}

func (k FactKind) String() string {
	if s, ok := factSlugs[k]; ok {
		return s
	}
	return fmt.Sprintf("FactKind(%d)", int(k))
}

func (k FactKind) IsBalance() bool {
	return k == ExpenseBalance || k == RevenueBalance
}

func (k FactKind) IsLedger() bool {
	return k == ExpenseLedger || k == RevenueLedger
}

func (k FactKind) IsRevenue() bool {
	return k == RevenueBalance || k == RevenueLedger
}

// DefaultChunkSize is the number of input rows written per insert transaction.
func (k FactKind) DefaultChunkSize() int {
	switch k {
	case ExpenseBalance:
		return 20000
	case RevenueBalance:
		return 50000
	default:
		return 5000
	}
}

// ParseFactKind accepts the slug ("saldo-despesa"), the table name or a short
// alias ("despesa", "receita", "lancamentos-despesa").
func ParseFactKind(s string) (FactKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	for k, slug := range factSlugs {
		if s == slug || s == strings.ReplaceAll(factTables[k], "_", "-") {
			return k, nil
		}
	}
	switch s {
	case "despesa", "saldos-despesa":
		return ExpenseBalance, nil
	case "receita", "saldos-receita":
		return RevenueBalance, nil
	case "lancamentos-despesa":
		return ExpenseLedger, nil
	case "lancamentos-receita":
		return RevenueLedger, nil
	}
	return 0, fmt.Errorf("unknown fact kind %q", s)
}

// Record is one parsed fact row keyed by lowercase column name. Null
// attributes are stored as nil.
type Record map[string]any

// Values returns the record's values in the order of cols.
func (r Record) Values(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}
