package audit

import (
	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

// Relationship is one fact column expected to reference a dimension key.
type Relationship struct {
	Column       string `json:"column"`
	Dimension    string `json:"dimension"`
	DimensionKey string `json:"dimension_key"`
}

// Catalog lists, per fact kind, every column that references a cataloged
// dimension.
var Catalog = map[types.FactKind][]Relationship{}

func init() {
	for _, k := range types.AllFactKinds {
		for _, c := range types.Schema(k) {
			if d, ok := dims.ByKey(c.Name); ok {
				Catalog[k] = append(Catalog[k], Relationship{Column: c.Name, Dimension: d.Table, DimensionKey: d.Key})
			}
		}
	}
}
