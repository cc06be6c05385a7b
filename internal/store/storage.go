package store

import (
	"context"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

type Storage struct {
	Backend *Backend

	Facts interface {
		EnsureTable(ctx context.Context, kind types.FactKind, recreate bool) error
		TableExists(ctx context.Context, kind types.FactKind) (bool, error)
		PeriodExists(ctx context.Context, kind types.FactKind, period types.Period) (bool, error)
		CountRows(ctx context.Context, kind types.FactKind, period types.Period) (int64, error)
		Periods(ctx context.Context, kind types.FactKind) ([]types.Period, error)
		DeletePeriod(ctx context.Context, kind types.FactKind, period types.Period) (int64, error)
		InsertChunk(ctx context.Context, kind types.FactKind, records []types.Record) (int64, error)
	}

	Dimensions interface {
		Exists(ctx context.Context, table string) (bool, error)
		Columns(ctx context.Context, table string) ([]ColumnInfo, error)
		Replace(ctx context.Context, t DimensionTable) error
		CreateUniqueIndex(ctx context.Context, table, column string) error
		Drop(ctx context.Context, table string) error
	}
}

func NewStorage(backend *Backend) *Storage {
	return &Storage{
		Backend:    backend,
		Facts:      &FactStore{backend: backend},
		Dimensions: &DimensionStore{backend: backend},
	}
}
