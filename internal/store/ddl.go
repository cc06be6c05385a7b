package store

import (
	"fmt"
	"strings"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

// CreateTableSQL renders CREATE TABLE for cols in the given dialect.
func CreateTableSQL(dialect db.Dialect, table string, cols []types.Column) (string, error) {
	if !db.ValidIdent(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		if !db.ValidIdent(c.Name) {
			return "", fmt.Errorf("invalid column name %q", c.Name)
		}
		def := db.QuoteIdent(c.Name) + " " + dialect.ColumnType(string(c.Type))
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		if !c.Nullable && c.Default == "" {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", db.QuoteIdent(table), strings.Join(defs, ",\n\t")), nil
}

// IndexName builds a deterministic index name for table/column.
func IndexName(prefix, table, column string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, table, column)
}
