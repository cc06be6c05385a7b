package store

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cast"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

// Row is one result row keyed by column name.
type Row map[string]any

func (r Row) String(col string) string {
	return strings.TrimSpace(cast.ToString(r[col]))
}

func (r Row) Float(col string) float64 {
	return cast.ToFloat64(r[col])
}

func (r Row) Int(col string) int {
	return cast.ToInt(r[col])
}

// Has reports whether the row carries a non-null value for col.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// ColumnInfo describes a column of an existing table.
type ColumnInfo struct {
	Name string
	Type string
}

// Backend wraps one storage engine. Queries handed to ExecuteQuery use the
// dialect's placeholders: ? for the embedded engines, :pN for postgres.
type Backend struct {
	db      *sqlx.DB
	dialect db.Dialect
	logger  *logger.Logger
}

func NewBackend(conn *sqlx.DB, dialect db.Dialect, appLogger *logger.Logger) *Backend {
	return &Backend{db: conn, dialect: dialect, logger: appLogger}
}

func (b *Backend) Dialect() db.Dialect {
	return b.dialect
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// ExecuteQuery runs a SELECT and returns every row as a mapping.
func (b *Backend) ExecuteQuery(ctx context.Context, query string, args ...any) ([]Row, error) {
	q, bound, err := b.bind(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryxContext(ctx, q, bound...)
	if err != nil {
		b.logger.Error("Store", "query failed: %v sql=%s", err, query)
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(m))
		for k, v := range m {
			row[strings.ToLower(k)] = normalize(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a statement and returns the affected row count.
func (b *Backend) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, bound, err := b.bind(query, args)
	if err != nil {
		return 0, err
	}
	res, err := b.db.ExecContext(ctx, q, bound...)
	if err != nil {
		b.logger.Error("Store", "exec failed: %v sql=%s", err, query)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// InTx runs fn inside a transaction, rolling back when fn fails.
func (b *Backend) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Warn("Store", "rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// maxParams caps bind parameters per statement below every engine's limit.
const maxParams = 30000

// InsertRows writes rows into table as one transaction: either every row is
// stored or none is.
func (b *Backend) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if !db.ValidIdent(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = db.QuoteIdent(c)
	}
	rowMarks := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	batch := maxParams / len(columns)
	if batch < 1 {
		batch = 1
	}

	var inserted int64
	err := b.InTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(rows); start += batch {
			end := min(start+batch, len(rows))
			var sb strings.Builder
			sb.WriteString("INSERT INTO ")
			sb.WriteString(db.QuoteIdent(table))
			sb.WriteString(" (")
			sb.WriteString(strings.Join(quoted, ", "))
			sb.WriteString(") VALUES ")
			args := make([]any, 0, (end-start)*len(columns))
			for i, row := range rows[start:end] {
				if len(row) != len(columns) {
					return fmt.Errorf("row %d has %d values, want %d", start+i, len(row), len(columns))
				}
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(rowMarks)
				args = append(args, row...)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(sb.String()), args...); err != nil {
				return err
			}
			inserted += int64(end - start)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// TableExists reports whether table is present in the current schema.
func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch b.dialect {
	case db.SQLite:
		query = "SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND name = ?"
	case db.Postgres:
		query = "SELECT COUNT(*) AS n FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = :p1"
	default:
		query = "SELECT COUNT(*) AS n FROM information_schema.tables WHERE table_name = ?"
	}
	rows, err := b.ExecuteQuery(ctx, query, table)
	if err != nil {
		return false, err
	}
	return len(rows) == 1 && rows[0].Int("n") > 0, nil
}

// TableColumns lists the columns of table in declaration order.
func (b *Backend) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	var rows []Row
	var err error
	switch b.dialect {
	case db.SQLite:
		rows, err = b.ExecuteQuery(ctx, "SELECT name AS column_name, type AS data_type FROM pragma_table_info(?) ORDER BY cid", table)
	case db.Postgres:
		rows, err = b.ExecuteQuery(ctx, `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = :p1 ORDER BY ordinal_position`, table)
	default:
		rows, err = b.ExecuteQuery(ctx, `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_name = ? ORDER BY ordinal_position`, table)
	}
	if err != nil {
		return nil, err
	}
	cols := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, ColumnInfo{Name: strings.ToLower(r.String("column_name")), Type: strings.ToUpper(r.String("data_type"))})
	}
	return cols, nil
}

// bind turns :pN names into the driver's positional markers for postgres.
func (b *Backend) bind(query string, args []any) (string, []any, error) {
	if !b.dialect.Named() {
		return query, args, nil
	}
	params := make(map[string]any, len(args))
	for i, a := range args {
		params[fmt.Sprintf("p%d", i+1)] = a
	}
	q, bound, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("bind named params: %w", err)
	}
	return b.db.Rebind(q), bound, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case time.Time:
		return x
	default:
		return v
	}
}
