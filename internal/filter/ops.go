// Package filter implements spec.md §4.5's condition-filter subsystem:
// row-level and cartesian (post-join) predicates, arithmetic expression
// evaluation, NULL semantics, and index-eligibility detection. Grounded
// in the teacher's server/innodb/manager condition-evaluation helpers
// for the per-type comparator shape, generalized from InnoDB's row
// format to spec.md's explicit NULL-bitmap + fixed-offset columns.
package filter

import "github.com/xdbengine/storage/internal/catalog"

// CompOp is one comparison operator a Filter or CartesianFilter applies.
// It mirrors internal/bptree.CompOp in spirit (same six relational
// operators) but stays a distinct type: the filter subsystem also needs
// IsNull/IsNotNull, which never reach the index layer.
type CompOp int

const (
	EQ CompOp = iota
	LT
	LE
	GT
	GE
	NE
	IsNull
	IsNotNull
)

// ExprOp is an arithmetic operator for ExpressionFilter's expression
// trees, per spec.md §4.5 ("+ − × ÷, unary minus, literals, attribute
// refs").
type ExprOp int

const (
	Add ExprOp = iota
	Sub
	Mul
	Div
	Neg
	Lit   // leaf: literal value
	Field // leaf: column reference
)

// FieldRef names a column, optionally qualified by table/alias — used
// both standalone (row-level Filter) and within a joined tuple
// (CartesianFilter, ExpressionFilter over multiple tables).
type FieldRef struct {
	Table string
	Field string
}

// Operand is one side of a Filter: either a constant Value or a field
// reference resolved against a table's metadata at bind time.
type Operand struct {
	IsField bool
	Ref     FieldRef
	Val     catalog.Value
}

// ValueOperand wraps a constant.
func ValueOperand(v catalog.Value) Operand { return Operand{Val: v} }

// FieldOperand references a column by (table, field).
func FieldOperand(table, field string) Operand { return Operand{IsField: true, Ref: FieldRef{Table: table, Field: field}} }

// compareResult applies op to the ordered result of catalog.Compare(a, b),
// shared by Filter and CartesianFilter once both operands are resolved
// to non-NULL values.
func compareResult(op CompOp, c int) bool {
	switch op {
	case EQ:
		return c == 0
	case LT:
		return c < 0
	case LE:
		return c <= 0
	case GT:
		return c > 0
	case GE:
		return c >= 0
	case NE:
		return c != 0
	default:
		return false
	}
}
