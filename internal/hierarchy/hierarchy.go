// Package hierarchy folds flat report rows into ordered, summed trees.
package hierarchy

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Row is what the aggregator needs from a query result row.
type Row interface {
	String(col string) string
	Float(col string) float64
}

// Level describes one tier of the tree.
type Level struct {
	// Key is the row column holding the node code.
	Key string
	// Name is the row column holding the display name, if any.
	Name string
	// Kind prefixes the fallback display name: "<Kind> <code>".
	Kind string
	// Labels are static display names by code, used before the fallback.
	Labels map[string]string
	// Order lists codes that sort first, in this order; the rest sort by code.
	Order []string
	// Map rewrites a code before grouping (e.g. administration-type fold).
	Map func(code string) string
}

type Schema struct {
	Levels   []Level
	Measures []string
}

type Options struct {
	// PruneBelow drops childless nodes whose summed absolute measures fall
	// below it.
	// Zero means the default of 0.01; negative disables pruning.
	PruneBelow float64
	// ExpandDepth marks nodes shallower than it as expanded.
	ExpandDepth int
	// ParticipationOf names the measure participation is computed against.
	ParticipationOf string
}

const DefaultPruneBelow = 0.01

type Node struct {
	Code          string             `json:"codigo"`
	Name          string             `json:"nome"`
	Level         int                `json:"nivel"`
	Measures      map[string]float64 `json:"valores"`
	Children      []*Node            `json:"filhos,omitempty"`
	HasChildren   bool               `json:"tem_filhos"`
	Expanded      bool               `json:"expandido"`
	Participation float64            `json:"participacao"`
	Synthetic     bool               `json:"sintetico,omitempty"`

	order int
}

type Tree struct {
	Roots    []*Node            `json:"itens"`
	Totals   map[string]float64 `json:"totais"`
	Measures []string           `json:"medidas"`
}

// HasData reports whether any node survived aggregation.
func (t *Tree) HasData() bool {
	for _, r := range t.Roots {
		if !r.Synthetic {
			return true
		}
	}
	return false
}

type bucket struct {
	codes    []string
	names    []string
	measures []float64
}

// Build reduces rows by their level keys, builds the tree, folds sums bottom
// up, prunes near-zero nodes and orders every level.
func Build[R Row](rows []R, schema Schema, opts Options) (*Tree, error) {
	if len(schema.Levels) == 0 {
		return nil, fmt.Errorf("hierarchy: no levels")
	}
	buckets := map[string]*bucket{}
	var keys []string
	for _, row := range rows {
		codes := make([]string, len(schema.Levels))
		names := make([]string, len(schema.Levels))
		for i, lvl := range schema.Levels {
			code := row.String(lvl.Key)
			if lvl.Map != nil {
				code = lvl.Map(code)
			}
			codes[i] = code
			if lvl.Name != "" {
				names[i] = row.String(lvl.Name)
			}
		}
		k := strings.Join(codes, "\x00")
		b, ok := buckets[k]
		if !ok {
			b = &bucket{codes: codes, names: names, measures: make([]float64, len(schema.Measures))}
			buckets[k] = b
			keys = append(keys, k)
		}
		for i, n := range names {
			if b.names[i] == "" {
				b.names[i] = n
			}
		}
		for i, m := range schema.Measures {
			b.measures[i] += row.Float(m)
		}
	}
	sort.Strings(keys)

	root := &Node{Level: -1, Measures: map[string]float64{}}
	index := map[string]*Node{}
	for _, k := range keys {
		b := buckets[k]
		parent := root
		path := ""
		for depth, lvl := range schema.Levels {
			path += "\x00" + b.codes[depth]
			n, ok := index[path]
			if !ok {
				n = &Node{
					Code:     b.codes[depth],
					Level:    depth,
					Measures: map[string]float64{},
					order:    orderOf(lvl, b.codes[depth]),
				}
				index[path] = n
				parent.Children = append(parent.Children, n)
			}
			if n.Name == "" && b.names[depth] != "" {
				n.Name = b.names[depth]
			}
			parent = n
		}
		for i, m := range schema.Measures {
			parent.Measures[m] += b.measures[i]
		}
	}

	threshold := opts.PruneBelow
	if threshold == 0 {
		threshold = DefaultPruneBelow
	}
	fold(root, schema.Measures)
	if threshold > 0 {
		prune(root, schema.Measures, threshold)
		fold(root, schema.Measures)
	}
	finish(root, schema, opts)

	t := &Tree{Roots: root.Children, Totals: root.Measures, Measures: schema.Measures}
	if opts.ParticipationOf != "" {
		t.participation(opts.ParticipationOf)
	}
	return t, nil
}

func orderOf(lvl Level, code string) int {
	for i, c := range lvl.Order {
		if c == code {
			return i
		}
	}
	return len(lvl.Order)
}

// fold recomputes every inner node as the sum of its children.
func fold(n *Node, measures []string) {
	if len(n.Children) == 0 {
		return
	}
	sums := make(map[string]float64, len(measures))
	for _, c := range n.Children {
		fold(c, measures)
		for _, m := range measures {
			sums[m] += c.Measures[m]
		}
	}
	n.Measures = sums
}

func magnitude(n *Node, measures []string) float64 {
	var total float64
	for _, m := range measures {
		total += math.Abs(n.Measures[m])
	}
	return total
}

// prune drops leaves whose absolute measures sum below threshold. An inner node
// survives while it has children, even when they cancel to zero.
func prune(n *Node, measures []string, threshold float64) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		prune(c, measures, threshold)
		if len(c.Children) > 0 || magnitude(c, measures) >= threshold {
			kept = append(kept, c)
		}
	}
	n.Children = kept
}

func finish(n *Node, schema Schema, opts Options) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.order != b.order {
			return a.order < b.order
		}
		return a.Code < b.Code
	})
	for _, c := range n.Children {
		lvl := schema.Levels[c.Level]
		if c.Name == "" {
			c.Name = displayName(lvl, c.Code)
		}
		c.HasChildren = len(c.Children) > 0
		c.Expanded = c.HasChildren && c.Level < opts.ExpandDepth
		finish(c, schema, opts)
	}
}

func displayName(lvl Level, code string) string {
	if name, ok := lvl.Labels[code]; ok {
		return name
	}
	kind := lvl.Kind
	if kind == "" {
		kind = lvl.Key
	}
	return strings.TrimSpace(kind + " " + code)
}

func (t *Tree) participation(measure string) {
	total := t.Totals[measure]
	t.Walk(func(n *Node) {
		if total != 0 {
			n.Participation = n.Measures[measure] / total * 100
		}
	})
}

// Walk visits every node depth first, parents before children.
func (t *Tree) Walk(fn func(n *Node)) {
	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			visit(n.Children)
		}
	}
	visit(t.Roots)
}
