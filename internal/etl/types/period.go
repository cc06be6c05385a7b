package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is the (exercise, month) pair, the atomic unit of a fact load.
type Period struct {
	Exercise int `json:"exercicio"`
	Month    int `json:"mes"`
}

func NewPeriod(exercise, month int) (Period, error) {
	p := Period{Exercise: exercise, Month: month}
	return p, p.Validate()
}

func (p Period) Validate() error {
	if p.Exercise < 1900 || p.Exercise > 9999 {
		return fmt.Errorf("invalid exercise %d", p.Exercise)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid month %d", p.Month)
	}
	return nil
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Exercise, p.Month)
}

// Bimester returns the 1-based bimester the month falls in.
func (p Period) Bimester() int {
	return (p.Month + 1) / 2
}

// ParsePeriod parses "YYYY-MM" (or "YYYY-M").
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return NewPeriod(year, month)
}

// BimesterMonths returns the two months of bimester b (1..6).
func BimesterMonths(b int) ([]int, error) {
	if b < 1 || b > 6 {
		return nil, fmt.Errorf("invalid bimester %d", b)
	}
	return []int{2*b - 1, 2 * b}, nil
}

// MonthRange returns from..to inclusive.
func MonthRange(from, to int) []int {
	var out []int
	for m := from; m <= to; m++ {
		out = append(out, m)
	}
	return out
}
