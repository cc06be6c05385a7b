package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/farxc/orcamento-analytics/internal/db"
)

type emitter struct {
	dialect db.Dialect
	sb      strings.Builder
	args    []any
	err     error
}

// Emit renders stmt for dialect, returning the SQL text and its bound
// arguments in placeholder order.
func Emit(stmt *Select, dialect db.Dialect) (string, []any, error) {
	e := &emitter{dialect: dialect}
	e.selectStmt(stmt)
	if e.err != nil {
		return "", nil, e.err
	}
	return e.sb.String(), e.args, nil
}

func (e *emitter) write(parts ...string) {
	for _, p := range parts {
		e.sb.WriteString(p)
	}
}

func (e *emitter) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidSpec}, args...)...)
	}
}

func (e *emitter) ident(name string) {
	if !db.ValidIdent(name) {
		e.fail("invalid identifier %q", name)
		return
	}
	e.write(name)
}

func (e *emitter) selectStmt(s *Select) {
	if s == nil {
		e.fail("nil select")
		return
	}
	if len(s.With) > 0 {
		e.write("WITH ")
		for i, cte := range s.With {
			if i > 0 {
				e.write(",\n")
			}
			e.ident(cte.Name)
			e.write(" AS (\n")
			e.selectStmt(cte.Select)
			e.write("\n)")
		}
		e.write("\n")
	}
	e.write("SELECT ")
	if len(s.Items) == 0 {
		e.write("*")
	}
	for i, it := range s.Items {
		if i > 0 {
			e.write(", ")
		}
		it.Expr.emit(e)
		if it.Alias != "" {
			e.write(" AS ")
			e.ident(it.Alias)
		}
	}
	e.write("\nFROM ")
	e.table(s.From)
	for _, j := range s.Joins {
		e.write("\nLEFT JOIN ")
		e.table(j.Table)
		e.write(" ON ")
		j.On.emit(e)
	}
	if s.Where != nil && !empty(s.Where) {
		e.write("\nWHERE ")
		s.Where.emit(e)
	}
	if len(s.GroupBy) > 0 {
		e.write("\nGROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				e.write(", ")
			}
			g.emit(e)
		}
	}
	if len(s.OrderBy) > 0 {
		e.write("\nORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				e.write(", ")
			}
			o.Expr.emit(e)
			if o.Desc {
				e.write(" DESC")
			}
		}
	}
	if s.Limit > 0 {
		e.write("\nLIMIT ", strconv.Itoa(s.Limit))
	}
}

func (e *emitter) table(t TableRef) {
	e.ident(t.Name)
	if t.Alias != "" && t.Alias != t.Name {
		e.write(" ")
		e.ident(t.Alias)
	}
}

func empty(x Expr) bool {
	switch v := x.(type) {
	case And:
		return len(v) == 0
	case Or:
		return len(v) == 0
	}
	return false
}

func (c Col) emit(e *emitter) {
	if c.Table != "" {
		e.ident(c.Table)
		e.write(".")
	}
	e.ident(c.Name)
}

func (s Star) emit(e *emitter) {
	if s.Table != "" {
		e.ident(s.Table)
		e.write(".")
	}
	e.write("*")
}

func (l Lit) emit(e *emitter) {
	switch v := l.Value.(type) {
	case nil:
		e.write("NULL")
	case int:
		e.write(strconv.Itoa(v))
	case int64:
		e.write(strconv.FormatInt(v, 10))
	case float64:
		e.write(strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		e.write("'", strings.ReplaceAll(v, "'", "''"), "'")
	default:
		e.fail("unsupported literal %T", v)
	}
}

func (p Param) emit(e *emitter) {
	e.args = append(e.args, p.Value)
	e.write(e.dialect.Placeholder(len(e.args)))
}

var allowedOps = map[string]bool{"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true, "LIKE": true}

func (c Cmp) emit(e *emitter) {
	if !allowedOps[c.Op] {
		e.fail("unsupported operator %q", c.Op)
		return
	}
	c.Left.emit(e)
	e.write(" ", c.Op, " ")
	c.Right.emit(e)
}

func (b Between) emit(e *emitter) {
	b.Expr.emit(e)
	e.write(" BETWEEN ")
	b.Lo.emit(e)
	e.write(" AND ")
	b.Hi.emit(e)
}

func (in In) emit(e *emitter) {
	if len(in.Values) == 0 {
		// an empty IN list matches nothing (or everything when negated)
		if in.Not {
			e.write("1 = 1")
		} else {
			e.write("1 = 0")
		}
		return
	}
	in.Expr.emit(e)
	if in.Not {
		e.write(" NOT")
	}
	e.write(" IN (")
	for i, v := range in.Values {
		if i > 0 {
			e.write(", ")
		}
		v.emit(e)
	}
	e.write(")")
}

func (n IsNull) emit(e *emitter) {
	n.Expr.emit(e)
	if n.Not {
		e.write(" IS NOT NULL")
	} else {
		e.write(" IS NULL")
	}
}

func (a And) emit(e *emitter) { e.join(" AND ", a, "1 = 1") }

func (o Or) emit(e *emitter) { e.join(" OR ", o, "1 = 0") }

func (e *emitter) join(sep string, parts []Expr, zero string) {
	if len(parts) == 0 {
		e.write(zero)
		return
	}
	if len(parts) == 1 {
		parts[0].emit(e)
		return
	}
	e.write("(")
	for i, p := range parts {
		if i > 0 {
			e.write(sep)
		}
		p.emit(e)
	}
	e.write(")")
}

func (c Case) emit(e *emitter) {
	e.write("CASE WHEN ")
	c.When.emit(e)
	e.write(" THEN ")
	c.Then.emit(e)
	if c.Else != nil {
		e.write(" ELSE ")
		c.Else.emit(e)
	}
	e.write(" END")
}

var allowedFuncs = map[string]bool{"SUM": true, "COUNT": true, "MAX": true, "MIN": true, "COALESCE": true, "ABS": true}

func (f Func) emit(e *emitter) {
	if !allowedFuncs[f.Name] {
		e.fail("unsupported function %q", f.Name)
		return
	}
	e.write(f.Name, "(")
	for i, a := range f.Args {
		if i > 0 {
			e.write(", ")
		}
		a.emit(e)
	}
	e.write(")")
}
