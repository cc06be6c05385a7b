package parser

import (
	"strconv"
	"strings"
	"time"
)

// NormalizeCode trims a code and undoes spreadsheet numeric coercion:
// "621200000.0" becomes "621200000" and "6.212E+08" becomes "621200000".
func NormalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" && isDigits(s[:i]) {
		return s[:i]
	}
	if strings.ContainsAny(s, "eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}

// PadNature left-pads a numeric nature code to six digits.
func PadNature(s string) string {
	s = NormalizeCode(s)
	if s == "" || !isDigits(s) || len(s) >= 6 {
		return s
	}
	return strings.Repeat("0", 6-len(s)) + s
}

// ParseAmount accepts "1234.56", "1.234,56" and "1234,56". Empty is zero.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

// ParseDate accepts dd/mm/yyyy or yyyy-mm-dd (optionally with a time part)
// and returns the ISO date, or "" when unparseable.
func ParseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"02/01/2006", "2006-01-02", "02/01/2006 15:04:05", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(s) > 10 {
		return ParseDate(s[:10])
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
