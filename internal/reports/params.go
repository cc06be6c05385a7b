package reports

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/format"
	"github.com/farxc/orcamento-analytics/internal/query"
)

var validate = validator.New()

// Params are the report filters. Month selects the cumulative window
// January..Month; Bimester selects a bimester and is exclusive with Month.
type Params struct {
	Year        int    `json:"ano" validate:"required,gte=2000,lte=2100"`
	Month       int    `json:"mes,omitempty" validate:"omitempty,gte=1,lte=12,excluded_with=Bimester"`
	Bimester    int    `json:"bimestre,omitempty" validate:"omitempty,gte=1,lte=6"`
	UG          string `json:"ug,omitempty" validate:"omitempty,numeric,max=6"`
	RevenueType string `json:"tipo_receita,omitempty" validate:"omitempty,oneof=corrente capital intra"`
	// Modality scopes intra-budgetary expense rows: todas, sem_intra or intra.
	Modality string `json:"modalidade,omitempty"`
}

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if _, err := query.ParseModalityScope(p.Modality); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return nil
}

// EndMonth is the last month covered: the bimester's second month, the
// chosen month, or December.
func (p Params) EndMonth() int {
	switch {
	case p.Bimester > 0:
		return 2 * p.Bimester
	case p.Month > 0:
		return p.Month
	}
	return 12
}

// Cumulative is January..EndMonth.
func (p Params) Cumulative() []int {
	return types.MonthRange(1, p.EndMonth())
}

// ResolvedBimester returns the bimester, deriving it from the month.
func (p Params) ResolvedBimester() int {
	if p.Bimester > 0 {
		return p.Bimester
	}
	return (p.EndMonth() + 1) / 2
}

func (p Params) label(bimonthly bool) string {
	if bimonthly {
		return format.BimesterLabel(p.Year, p.ResolvedBimester())
	}
	if p.Bimester > 0 {
		return format.BimesterLabel(p.Year, p.Bimester)
	}
	if p.Month == 0 {
		return format.PeriodLabel(p.Year, 0)
	}
	return format.PeriodLabel(p.Year, p.Month)
}

func (p Params) cacheKey() string {
	return fmt.Sprintf("%d:%d:%d:%s:%s:%s", p.Year, p.Month, p.Bimester, p.UG, p.RevenueType, p.Modality)
}
