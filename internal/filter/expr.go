package filter

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/xerrors"
)

// Expr is one node of an arithmetic expression tree, per spec.md §4.5:
// literals, column references, the four binary arithmetic operators, and
// unary minus. It is evaluated against a set of named rows so the same
// tree serves both a single-table WHERE clause and a post-join tuple.
type Expr struct {
	Op       ExprOp
	Lit      catalog.Value
	Ref      FieldRef
	Children []*Expr

	bound      *boundField
	boundTable string
}

func Literal(v catalog.Value) *Expr { return &Expr{Op: Lit, Lit: v} }

func FieldExpr(table, field string) *Expr {
	return &Expr{Op: Field, Ref: FieldRef{Table: table, Field: field}}
}

func BinaryExpr(op ExprOp, left, right *Expr) *Expr {
	return &Expr{Op: op, Children: []*Expr{left, right}}
}

func NegExpr(e *Expr) *Expr { return &Expr{Op: Neg, Children: []*Expr{e}} }

// Bind resolves every Field leaf against the named table metadata it
// refers to.
func (e *Expr) Bind(tables map[string]*catalog.TableMeta) error {
	switch e.Op {
	case Lit:
		return nil
	case Field:
		meta, ok := tables[e.Ref.Table]
		if !ok {
			return xerrors.New("Expr.Bind", xerrors.SchemaTableNotExist)
		}
		b, err := bind(meta, e.Ref.Field)
		if err != nil {
			return err
		}
		e.bound, e.boundTable = b, e.Ref.Table
		return nil
	default:
		for _, c := range e.Children {
			if err := c.Bind(tables); err != nil {
				return err
			}
		}
		return nil
	}
}

// Eval evaluates e against rows (keyed by table name/alias), propagating
// NULL through arithmetic per spec.md §4.5 ("any arithmetic over a NULL
// operand yields a NULL result").
func (e *Expr) Eval(rows map[string][]byte, nullBytes map[string]int) (catalog.Value, bool) {
	switch e.Op {
	case Lit:
		return e.Lit, e.Lit.Null
	case Field:
		row := rows[e.boundTable]
		return decodeBound(e.bound, row, nullBytes[e.boundTable])
	case Neg:
		v, null := e.Children[0].Eval(rows, nullBytes)
		if null {
			return catalog.Value{Type: v.Type, Null: true}, true
		}
		return negate(v), false
	default:
		lv, lnull := e.Children[0].Eval(rows, nullBytes)
		rv, rnull := e.Children[1].Eval(rows, nullBytes)
		if lnull || rnull {
			return catalog.Value{Null: true}, true
		}
		return arith(e.Op, lv, rv), false
	}
}

func negate(v catalog.Value) catalog.Value {
	if v.Type == catalog.TypeFloat {
		return catalog.NewFloat(-v.F)
	}
	return catalog.NewInt(-v.I)
}

func arith(op ExprOp, l, r catalog.Value) catalog.Value {
	if l.Type == catalog.TypeFloat || r.Type == catalog.TypeFloat {
		lf, rf := asFloat(l), asFloat(r)
		switch op {
		case Add:
			return catalog.NewFloat(lf + rf)
		case Sub:
			return catalog.NewFloat(lf - rf)
		case Mul:
			return catalog.NewFloat(lf * rf)
		case Div:
			if rf == 0 {
				return catalog.Value{Type: catalog.TypeFloat, Null: true}
			}
			return catalog.NewFloat(lf / rf)
		}
		return catalog.Value{}
	}
	switch op {
	case Add:
		return catalog.NewInt(l.I + r.I)
	case Sub:
		return catalog.NewInt(l.I - r.I)
	case Mul:
		return catalog.NewInt(l.I * r.I)
	case Div:
		if r.I == 0 {
			return catalog.Value{Type: catalog.TypeInt, Null: true}
		}
		return catalog.NewInt(l.I / r.I)
	}
	return catalog.Value{}
}

func asFloat(v catalog.Value) float32 {
	if v.Type == catalog.TypeFloat {
		return v.F
	}
	return float32(v.I)
}

// ExpressionFilter compares two Expr trees, per spec.md §4.5. Unlike
// Filter, it evaluates against a multi-table row set, so it cannot
// implement record.RowFilter directly — the sub-query operator calls
// Matches with the current tuple's rows.
type ExpressionFilter struct {
	Left, Right *Expr
	Op          CompOp

	nullBytes map[string]int
}

func NewExpressionFilter(left *Expr, op CompOp, right *Expr) *ExpressionFilter {
	return &ExpressionFilter{Left: left, Right: right, Op: op}
}

// Bind resolves every field reference in both expression trees.
func (ef *ExpressionFilter) Bind(tables map[string]*catalog.TableMeta) error {
	ef.nullBytes = make(map[string]int, len(tables))
	for name, m := range tables {
		ef.nullBytes[name] = m.NullBitmapBytes
	}
	if err := ef.Left.Bind(tables); err != nil {
		return err
	}
	return ef.Right.Bind(tables)
}

// Matches evaluates the bound predicate against the current row set.
func (ef *ExpressionFilter) Matches(rows map[string][]byte) bool {
	lv, lnull := ef.Left.Eval(rows, ef.nullBytes)
	switch ef.Op {
	case IsNull:
		return lnull
	case IsNotNull:
		return !lnull
	}
	rv, rnull := ef.Right.Eval(rows, ef.nullBytes)
	if lnull || rnull {
		return false
	}
	return compareResult(ef.Op, catalog.Compare(lv, rv))
}
