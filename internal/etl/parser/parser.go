// Package parser turns one raw spreadsheet row into a typed fact record.
// It performs no I/O and keeps no state.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

type span struct {
	col        string
	start, end int
}

var revenueLayout = []span{
	{types.ColRevenueClass, 0, 8},
	{types.ColSource, 8, 17},
	{types.ColRevenueCategory, 0, 1},
	{types.ColRevenueOrigin, 0, 2},
	{types.ColRevenueSpecies, 0, 3},
	{types.ColRevenueSpec, 0, 4},
	{types.ColRevenueAlinea, 0, 6},
}

var expenseLayout = []span{
	{types.ColSphere, 0, 1},
	{types.ColSpendingUnit, 1, 6},
	{types.ColFunction, 6, 8},
	{types.ColSubfunction, 8, 11},
	{types.ColProgram, 11, 15},
	{types.ColProject, 15, 19},
	{types.ColSubtitle, 19, 23},
	{types.ColSource, 23, 32},
	{types.ColNature, 32, 38},
	{types.ColCategory, 32, 33},
	{types.ColGroup, 33, 34},
	{types.ColModality, 34, 36},
	{types.ColElement, 36, 38},
}

var subelement = span{types.ColSubelement, 38, 40}

// natureSplit is applied to the 6-digit nature column.
var natureSplit = []span{
	{types.ColCategory, 0, 1},
	{types.ColGroup, 1, 2},
	{types.ColModality, 2, 4},
	{types.ColElement, 4, 6},
}

// Decode applies the width dispatch to an account-current string. Widths
// other than 17, 38 and 40 yield no attributes.
func Decode(accountCurrent string) map[string]string {
	ac := strings.TrimSpace(accountCurrent)
	out := map[string]string{}
	switch len(ac) {
	case 17:
		apply(out, ac, revenueLayout)
	case 38:
		apply(out, ac, expenseLayout)
	case 40:
		apply(out, ac, expenseLayout)
		apply(out, ac, []span{subelement})
	}
	return out
}

func apply(out map[string]string, s string, layout []span) {
	for _, sp := range layout {
		out[sp.col] = s[sp.start:sp.end]
	}
}

// SignedBalance applies the sign convention: accounts starting with '5'
// carry debit minus credit, every other account credit minus debit.
func SignedBalance(contabil string, debit, credit float64) float64 {
	if strings.HasPrefix(strings.TrimSpace(contabil), "5") {
		return debit - credit
	}
	return credit - debit
}

// Parse decodes one raw row (keys already lowercased) into a record carrying
// every column of types.Schema(kind) except the load timestamp.
func Parse(kind types.FactKind, raw map[string]string) (types.Record, error) {
	rec := types.Record{}
	for _, c := range types.Schema(kind) {
		if c.Default == "" {
			rec[c.Name] = nil
		}
	}

	get := func(col string) string { return NormalizeCode(raw[col]) }

	exercise, err := parseInt(get(types.ColExercise))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", types.ColExercise, err)
	}
	rec[types.ColExercise] = int64(exercise)
	rec[types.ColUG] = nullable(get(types.ColUG))
	contabil := get(types.ColContabil)
	rec[types.ColContabil] = nullable(contabil)

	ac := get(types.ColAccountCurrent)
	rec[types.ColAccountCurrent] = nullable(ac)
	allowed := decodedSet(kind)
	if layoutFits(kind, len(ac)) {
		for col, v := range Decode(ac) {
			if allowed[col] {
				rec[col] = v
			}
		}
	}

	if allowed[types.ColNature] {
		nature := PadNature(get(types.ColNature))
		if rec[types.ColNature] == nil && nature != "" {
			rec[types.ColNature] = nature
		}
		if kind.IsBalance() && nature != "" {
			for _, sp := range natureSplit {
				if rec[sp.col] == nil && len(nature) >= sp.end {
					rec[sp.col] = nature[sp.start:sp.end]
				}
			}
		}
	}

	var month int
	if kind.IsLedger() {
		date := ParseDate(raw[types.ColPostingDate])
		rec[types.ColPostingDate] = nullable(date)
		if m := get(types.ColMonth); m != "" {
			if month, err = parseInt(m); err != nil {
				return nil, fmt.Errorf("%s: %w", types.ColMonth, err)
			}
		} else if len(date) == 10 {
			month, _ = strconv.Atoi(date[5:7])
		}
		if err := parseLedger(rec, raw, get); err != nil {
			return nil, err
		}
	} else {
		if month, err = parseInt(get(types.ColMonth)); err != nil {
			return nil, fmt.Errorf("%s: %w", types.ColMonth, err)
		}
		credit, err := ParseAmount(raw[types.ColCredit])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", types.ColCredit, err)
		}
		debit, err := ParseAmount(raw[types.ColDebit])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", types.ColDebit, err)
		}
		rec[types.ColCredit] = credit
		rec[types.ColDebit] = debit
		rec[types.ColSignedBalance] = SignedBalance(contabil, debit, credit)
	}

	period, err := types.NewPeriod(exercise, month)
	if err != nil {
		return nil, err
	}
	rec[types.ColMonth] = int64(month)
	rec[types.ColPeriod] = period.String()
	return rec, nil
}

func parseLedger(rec types.Record, raw map[string]string, get func(string) string) error {
	value, err := ParseAmount(raw[types.ColPostingValue])
	if err != nil {
		return fmt.Errorf("%s: %w", types.ColPostingValue, err)
	}
	flag := strings.ToUpper(strings.TrimSpace(raw[types.ColDebitCredit]))
	if flag != "D" && flag != "C" {
		return fmt.Errorf("%s: unexpected flag %q", types.ColDebitCredit, flag)
	}
	rec[types.ColPostingValue] = value
	rec[types.ColDebitCredit] = flag
	rec[types.ColDocument] = nullable(strings.TrimSpace(raw[types.ColDocument]))
	rec[types.ColPosting] = nullable(get(types.ColPosting))
	rec[types.ColEvent] = nullable(get(types.ColEvent))
	return nil
}

// layoutFits reports whether a balance row's account-current width belongs
// to the kind's own layout. A mismatched string is stored raw and decodes to
// nothing. Ledgers dispatch on width alone.
func layoutFits(kind types.FactKind, width int) bool {
	switch kind {
	case types.RevenueBalance:
		return width == 17
	case types.ExpenseBalance:
		return width == 38 || width == 40
	}
	return true
}

func decodedSet(kind types.FactKind) map[string]bool {
	set := map[string]bool{}
	if kind != types.ExpenseBalance {
		for _, c := range types.RevenueDecoded {
			set[c] = true
		}
	}
	if kind != types.RevenueBalance {
		for _, c := range types.ExpenseDecoded {
			set[c] = true
		}
	}
	return set
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.Atoi(s)
}
