// Package query holds a small SQL AST and the report query builder. The
// emitter owns placeholder discipline: ? for the embedded engines and :pN
// for postgres.
package query

// Expr is any SQL expression node.
type Expr interface {
	emit(e *emitter)
}

// Col references a column, optionally qualified.
type Col struct {
	Table string
	Name  string
}

// Lit is a literal inlined into the SQL text. Only statically known values
// (catalog ranges, enumerated codes) may be literals.
type Lit struct {
	Value any
}

// Param is a bound scalar.
type Param struct {
	Value any
}

// Star is table.* (or * when Table is empty).
type Star struct {
	Table string
}

type Cmp struct {
	Left  Expr
	Op    string
	Right Expr
}

type Between struct {
	Expr   Expr
	Lo, Hi Expr
}

type In struct {
	Expr   Expr
	Values []Expr
	Not    bool
}

type IsNull struct {
	Expr Expr
	Not  bool
}

type And []Expr

type Or []Expr

type Case struct {
	When Expr
	Then Expr
	Else Expr
}

type Func struct {
	Name string
	Args []Expr
}

type SelectItem struct {
	Expr  Expr
	Alias string
}

type TableRef struct {
	Name  string
	Alias string
}

type Join struct {
	Table TableRef
	On    Expr
}

type Order struct {
	Expr Expr
	Desc bool
}

type CTE struct {
	Name   string
	Select *Select
}

// Select is a SELECT statement with optional CTEs. Joins are LEFT JOINs.
type Select struct {
	With    []CTE
	Items   []SelectItem
	From    TableRef
	Joins   []Join
	Where   Expr
	GroupBy []Expr
	OrderBy []Order
	Limit   int
}

// Eq is shorthand for Cmp{l, "=", r}.
func Eq(l, r Expr) Cmp {
	return Cmp{Left: l, Op: "=", Right: r}
}

// C is shorthand for an unqualified column.
func C(name string) Col {
	return Col{Name: name}
}

// Ints turns a month list into literal nodes.
func Ints(values []int) []Expr {
	out := make([]Expr, len(values))
	for i, v := range values {
		out[i] = Lit{Value: v}
	}
	return out
}

// Strs turns statically known codes into literal nodes.
func Strs(values ...string) []Expr {
	out := make([]Expr, len(values))
	for i, v := range values {
		out[i] = Lit{Value: v}
	}
	return out
}
