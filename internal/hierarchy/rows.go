package hierarchy

import "math"

// VariationAbsolute is a - b.
func VariationAbsolute(a, b float64) float64 {
	return a - b
}

// VariationPercent is (a-b)/|b|*100. With b == 0 it is 100 when a > 0 and 0
// otherwise.
func VariationPercent(a, b float64) float64 {
	if b == 0 {
		if a > 0 {
			return 100.0
		}
		return 0.0
	}
	return (a - b) / math.Abs(b) * 100
}

// AddVariation stores absolute and percent variation between two measures on
// every node and on the totals. The results are not summed.
func (t *Tree) AddVariation(current, previous, absName, pctName string) {
	t.Walk(func(n *Node) {
		n.Measures[absName] = VariationAbsolute(n.Measures[current], n.Measures[previous])
		n.Measures[pctName] = VariationPercent(n.Measures[current], n.Measures[previous])
	})
	t.Totals[absName] = VariationAbsolute(t.Totals[current], t.Totals[previous])
	t.Totals[pctName] = VariationPercent(t.Totals[current], t.Totals[previous])
}

// Synthetic row labels.
const (
	LabelNetRevenue    = "RECEITA LÍQUIDA"
	LabelTotalExpenses = "TOTAL DESPESAS"
	LabelSurplus       = "SUPERÁVIT"
	LabelDeficit       = "DÉFICIT"
	LabelTotal         = "TOTAL"
)

// AppendTotal appends a synthetic top-level row carrying the tree totals
// with 100% participation.
func (t *Tree) AppendTotal(label string) *Node {
	n := &Node{
		Code:          label,
		Name:          label,
		Level:         0,
		Measures:      copyMeasures(t.Totals),
		Participation: 100,
		Synthetic:     true,
	}
	t.Roots = append(t.Roots, n)
	return n
}

// Balance builds the SUPERÁVIT/DÉFICIT row: revenue minus expense, labelled by
// the sign of the difference on the given measure.
func Balance(revenue, expense float64, measures map[string]float64) *Node {
	label := LabelSurplus
	if revenue-expense < 0 {
		label = LabelDeficit
	}
	return &Node{
		Code:          label,
		Name:          label,
		Measures:      copyMeasures(measures),
		Participation: 100,
		Synthetic:     true,
	}
}

func copyMeasures(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// adminTypeFold is the administration-type business rule of the
// tipo-de-administração view: 6 reports under 5 and 9 under 7.
var adminTypeFold = map[string]string{"6": "5", "9": "7"}

// FoldAdminType applies the administration-type fold. Only the balanço geral
// by administration type uses it.
func FoldAdminType(code string) string {
	if to, ok := adminTypeFold[code]; ok {
		return to
	}
	return code
}

// FlatRow is one node in depth-first order, as exported to CSV/XLSX.
type FlatRow struct {
	Level    int                `json:"nivel"`
	Code     string             `json:"codigo"`
	Name     string             `json:"nome"`
	Measures map[string]float64 `json:"valores"`
}

// Flatten lists every node depth first.
func (t *Tree) Flatten() []FlatRow {
	var out []FlatRow
	t.Walk(func(n *Node) {
		out = append(out, FlatRow{Level: n.Level, Code: n.Code, Name: n.Name, Measures: n.Measures})
	})
	return out
}
