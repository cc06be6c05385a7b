// Package format renders values the way Brazilian public-finance reports
// print them.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const TimestampLayout = "02/01/2006 15:04"

var months = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// Round rounds half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Number renders v with "." thousands and "," decimals: 1234.5 -> "1.234,50".
func Number(v float64, places int32) string {
	d := decimal.NewFromFloat(v).Round(places)
	neg := d.IsNegative()
	s := d.Abs().StringFixed(places)

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i+1:]
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// BRL renders a currency amount: -1234.5 -> "-R$ 1.234,50".
func BRL(v float64) string {
	s := Number(v, 2)
	if strings.HasPrefix(s, "-") {
		return "-R$ " + s[1:]
	}
	return "R$ " + s
}

// Percent renders a percentage already scaled to 0..100.
func Percent(v float64) string {
	return Number(v, 2) + "%"
}

// Timestamp renders t in loc as DD/MM/YYYY HH:MM.
func Timestamp(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimestampLayout)
}

func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return months[m-1]
}

// PeriodLabel renders "Março/2025", or "2025" for a whole year (month 0).
func PeriodLabel(year, month int) string {
	if name := MonthName(month); name != "" {
		return fmt.Sprintf("%s/%d", name, year)
	}
	return fmt.Sprint(year)
}

// BimesterLabel renders "2º Bimestre/2025 (Março-Abril)".
func BimesterLabel(year, bimester int) string {
	first := MonthName(2*bimester - 1)
	last := MonthName(2 * bimester)
	if first == "" || last == "" {
		return fmt.Sprint(year)
	}
	return fmt.Sprintf("%dº Bimestre/%d (%s-%s)", bimester, year, first, last)
}

// Title normalizes upper-case registry names for display, keeping short
// connectives lower-case: "SECRETARIA DE SAUDE" -> "Secretaria de Saude".
func Title(s string) string {
	// A Caser keeps state, so each call gets its own.
	words := strings.Fields(cases.Title(language.BrazilianPortuguese).String(strings.ToLower(s)))
	for i, w := range words {
		if i == 0 {
			continue
		}
		switch strings.ToLower(w) {
		case "de", "da", "do", "das", "dos", "e", "a", "o", "em":
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}

// DisplayName titles names that arrive in all capitals, as registry exports
// do. Mixed-case names are kept as typed.
func DisplayName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s != strings.ToUpper(s) || s == strings.ToLower(s) {
		return s
	}
	return Title(s)
}
