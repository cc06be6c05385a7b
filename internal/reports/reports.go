// Package reports builds the budget reports served by the API: it turns a
// report definition into query specs, runs them and folds the rows into
// hierarchies.
package reports

import (
	"context"
	"errors"

	"github.com/farxc/orcamento-analytics/internal/hierarchy"
)

var (
	ErrUnknownReport = errors.New("unknown report")
	ErrInvalidFilter = errors.New("invalid filter")
)

// Column formats.
const (
	FormatCurrency = "moeda"
	FormatPercent  = "percentual"
)

type Column struct {
	Key    string `json:"chave"`
	Label  string `json:"titulo"`
	Format string `json:"formato"`
}

// Section is one independently aggregated block of a report.
type Section struct {
	Name      string              `json:"nome"`
	Title     string              `json:"titulo"`
	Columns   []Column            `json:"colunas"`
	Hierarchy *hierarchy.Tree     `json:"hierarquia"`
	Rows      []hierarchy.FlatRow `json:"linhas"`
	Totals    map[string]float64  `json:"totais"`
}

type Report struct {
	Name        string              `json:"relatorio"`
	Title       string              `json:"titulo"`
	Period      string              `json:"periodo"`
	Filters     Params              `json:"filtros"`
	GeneratedAt string              `json:"gerado_em"`
	HasData     bool                `json:"tem_dados"`
	Columns     []Column            `json:"colunas"`
	Hierarchy   *hierarchy.Tree     `json:"hierarquia"`
	Rows        []hierarchy.FlatRow `json:"linhas"`
	Totals      map[string]float64  `json:"totais"`
	// Sections holds every block when a report has more than one; the
	// top-level hierarchy is then the first of them.
	Sections []Section       `json:"secoes,omitempty"`
	Result   *hierarchy.Node `json:"resultado,omitempty"`
	Warnings []string        `json:"avisos,omitempty"`
}

// AllSections returns the report's blocks, including a single-block report.
func (r *Report) AllSections() []Section {
	if len(r.Sections) > 0 {
		return r.Sections
	}
	return []Section{{Name: r.Name, Title: r.Title, Columns: r.Columns, Hierarchy: r.Hierarchy, Rows: r.Rows, Totals: r.Totals}}
}

func newSection(name, title string, cols []Column, tree *hierarchy.Tree) Section {
	return Section{Name: name, Title: title, Columns: cols, Hierarchy: tree, Rows: tree.Flatten(), Totals: tree.Totals}
}

func (r *Report) setSections(sections ...Section) {
	first := sections[0]
	r.Columns, r.Hierarchy, r.Rows, r.Totals = first.Columns, first.Hierarchy, first.Rows, first.Totals
	if len(sections) > 1 {
		r.Sections = sections
	}
	for _, s := range sections {
		if s.Hierarchy.HasData() {
			r.HasData = true
		}
	}
}

// Definition is one entry of the report catalog.
type Definition struct {
	Name  string `json:"nome"`
	Title string `json:"titulo"`
	// Bimonthly reports take a bimester; a month is mapped to its bimester.
	Bimonthly bool `json:"bimestral"`

	build func(s *Service, ctx context.Context, p Params) (*Report, error)
}

var catalog = []Definition{
	{Name: "receita-comparativa", Title: "Receita Realizada Comparativa", build: (*Service).revenueComparison},
	{Name: "balanco-orcamentario-receita", Title: "Balanço Orçamentário - Receita", build: (*Service).revenueBudget},
	{Name: "balanco-orcamentario-despesa", Title: "Balanço Orçamentário - Despesa", build: (*Service).expenseBudget},
	{Name: "rreo-anexo1", Title: "RREO Anexo 1 - Balanço Orçamentário", Bimonthly: true, build: (*Service).rreoAnnex1},
	{Name: "balanco-geral", Title: "Balanço Geral por Tipo de Administração", build: (*Service).generalBalance},
}

// Definitions lists the report catalog.
func Definitions() []Definition {
	return append([]Definition(nil), catalog...)
}

func lookup(name string) (Definition, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
