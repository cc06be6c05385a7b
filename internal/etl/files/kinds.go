package files

import (
	"path/filepath"
	"strings"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

// KindFromName guesses the fact kind from a file name such as
// "saldo_despesa_2025_07.csv" or "lancamentos-receita-202508.xlsx".
func KindFromName(path string) (types.FactKind, bool) {
	name := strings.ToLower(filepath.Base(path))
	ledger := strings.Contains(name, "lancamento")
	balance := strings.Contains(name, "saldo")
	revenue := strings.Contains(name, "receita")
	expense := strings.Contains(name, "despesa")

	switch {
	case balance && expense:
		return types.ExpenseBalance, true
	case balance && revenue:
		return types.RevenueBalance, true
	case ledger && expense:
		return types.ExpenseLedger, true
	case ledger && revenue:
		return types.RevenueLedger, true
	}
	return 0, false
}
