package db

import (
	"fmt"
	"regexp"
)

// Dialect names a storage backend's SQL flavour.
type Dialect string

const (
	DuckDB   Dialect = "duckdb"
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Named reports whether the dialect binds parameters as :pN instead of ?.
func (d Dialect) Named() bool {
	return d == Postgres
}

// Placeholder returns the bind marker for the n-th parameter (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.Named() {
		return fmt.Sprintf(":p%d", n)
	}
	return "?"
}

// ColumnType maps a logical column type to the dialect's DDL spelling.
func (d Dialect) ColumnType(logical string) string {
	switch logical {
	case "double":
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		if d == SQLite {
			return "REAL"
		}
		return "DOUBLE"
	case "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "timestamp":
		return "TIMESTAMP"
	case "date":
		return "DATE"
	default:
		return "VARCHAR"
	}
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdent reports whether name is a lowercase SQL identifier safe to inline.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// QuoteIdent double-quotes an identifier.
func QuoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}
