package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

type DimensionStore struct {
	backend *Backend
}

// DimensionTable is a fully materialized dimension ready to be written.
type DimensionTable struct {
	Name    string
	Columns []types.Column
	Rows    [][]any
}

func (d *DimensionStore) Exists(ctx context.Context, table string) (bool, error) {
	return d.backend.TableExists(ctx, table)
}

func (d *DimensionStore) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	return d.backend.TableColumns(ctx, table)
}

// Replace builds the table under a staging name and swaps it in, so a
// failure at any step leaves the previous table untouched.
func (d *DimensionStore) Replace(ctx context.Context, t DimensionTable) error {
	if !db.ValidIdent(t.Name) {
		return fmt.Errorf("invalid table name %q", t.Name)
	}
	staging := t.Name + "__staging"
	if _, err := d.backend.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(staging)); err != nil {
		return err
	}
	ddl, err := CreateTableSQL(d.backend.Dialect(), staging, t.Columns)
	if err != nil {
		return err
	}
	if _, err := d.backend.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create staging %s: %w", staging, err)
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	if _, err := d.backend.InsertRows(ctx, staging, names, t.Rows); err != nil {
		d.backend.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(staging))
		return fmt.Errorf("fill staging %s: %w", staging, err)
	}
	return d.backend.InTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(t.Name)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", db.QuoteIdent(staging), db.QuoteIdent(t.Name)))
		return err
	})
}

func (d *DimensionStore) CreateUniqueIndex(ctx context.Context, table, column string) error {
	_, err := d.backend.Exec(ctx, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		db.QuoteIdent(IndexName("uq", table, column)), db.QuoteIdent(table), db.QuoteIdent(column)))
	return err
}

func (d *DimensionStore) Drop(ctx context.Context, table string) error {
	_, err := d.backend.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(table))
	return err
}
