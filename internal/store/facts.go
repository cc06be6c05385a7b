package store

import (
	"context"
	"fmt"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

type FactStore struct {
	backend *Backend
}

// EnsureTable creates the fact table for kind (and its period index) when
// absent. With recreate the table is dropped first.
func (f *FactStore) EnsureTable(ctx context.Context, kind types.FactKind, recreate bool) error {
	table := kind.Table()
	if recreate {
		if _, err := f.backend.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	ddl, err := CreateTableSQL(f.backend.Dialect(), table, types.Schema(kind))
	if err != nil {
		return err
	}
	if _, err := f.backend.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		db.QuoteIdent(IndexName("idx", table, types.ColPeriod)), db.QuoteIdent(table), db.QuoteIdent(types.ColPeriod))
	if _, err := f.backend.Exec(ctx, idx); err != nil {
		return fmt.Errorf("index %s: %w", table, err)
	}
	return nil
}

func (f *FactStore) TableExists(ctx context.Context, kind types.FactKind) (bool, error) {
	return f.backend.TableExists(ctx, kind.Table())
}

func (f *FactStore) PeriodExists(ctx context.Context, kind types.FactKind, period types.Period) (bool, error) {
	n, err := f.CountRows(ctx, kind, period)
	return n > 0, err
}

// CountRows counts the rows stored for period; a missing table counts zero.
func (f *FactStore) CountRows(ctx context.Context, kind types.FactKind, period types.Period) (int64, error) {
	exists, err := f.TableExists(ctx, kind)
	if err != nil || !exists {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s = %s",
		db.QuoteIdent(kind.Table()), db.QuoteIdent(types.ColPeriod), f.backend.Dialect().Placeholder(1))
	rows, err := f.backend.ExecuteQuery(ctx, query, period.String())
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int64(rows[0].Int("n")), nil
}

// Periods lists the distinct periods loaded into kind's table, ascending.
func (f *FactStore) Periods(ctx context.Context, kind types.FactKind) ([]types.Period, error) {
	exists, err := f.TableExists(ctx, kind)
	if err != nil || !exists {
		return nil, err
	}
	col := db.QuoteIdent(types.ColPeriod)
	rows, err := f.backend.ExecuteQuery(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s", col, db.QuoteIdent(kind.Table()), col))
	if err != nil {
		return nil, err
	}
	out := make([]types.Period, 0, len(rows))
	for _, r := range rows {
		p, err := types.ParsePeriod(r.String(types.ColPeriod))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *FactStore) DeletePeriod(ctx context.Context, kind types.FactKind, period types.Period) (int64, error) {
	exists, err := f.TableExists(ctx, kind)
	if err != nil || !exists {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		db.QuoteIdent(kind.Table()), db.QuoteIdent(types.ColPeriod), f.backend.Dialect().Placeholder(1))
	return f.backend.Exec(ctx, query, period.String())
}

// InsertChunk writes records atomically.
func (f *FactStore) InsertChunk(ctx context.Context, kind types.FactKind, records []types.Record) (int64, error) {
	cols := types.InsertColumns(kind)
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = r.Values(cols)
	}
	return f.backend.InsertRows(ctx, kind.Table(), cols, rows)
}
