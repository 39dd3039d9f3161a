package filter

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// side identifies which half of a joined tuple a CartesianFilter operand
// reads from.
type side int

const (
	sideConst side = iota
	sideLeft
	sideRight
)

type cartesianOperand struct {
	side  side
	bound *boundField
	val   catalog.Value
}

// CartesianFilter evaluates a predicate over a joined (left-row,
// right-row) pair, per spec.md §4.5: used by the executor's join
// operators (JoinOperator, joinFilterOperator) once two tuples have been
// combined.
type CartesianFilter struct {
	Left, Right Operand
	Op          CompOp

	leftTable, rightTable       string
	leftNullBytes, rightNullBytes int
	left, right                 cartesianOperand
}

// NewCartesianFilter builds an unbound filter; call Bind before Matches.
func NewCartesianFilter(left Operand, op CompOp, right Operand) *CartesianFilter {
	return &CartesianFilter{Left: left, Right: right, Op: op}
}

// Bind resolves both operands against the two tables a join combines,
// identified by name/alias.
func (cf *CartesianFilter) Bind(leftTable string, leftMeta *catalog.TableMeta, rightTable string, rightMeta *catalog.TableMeta) error {
	cf.leftTable, cf.rightTable = leftTable, rightTable
	cf.leftNullBytes, cf.rightNullBytes = leftMeta.NullBitmapBytes, rightMeta.NullBitmapBytes
	l, err := cf.resolve(cf.Left, leftTable, leftMeta, rightTable, rightMeta)
	if err != nil {
		return err
	}
	r, err := cf.resolve(cf.Right, leftTable, leftMeta, rightTable, rightMeta)
	if err != nil {
		return err
	}
	cf.left, cf.right = l, r
	return nil
}

func (cf *CartesianFilter) resolve(op Operand, leftTable string, leftMeta *catalog.TableMeta, rightTable string, rightMeta *catalog.TableMeta) (cartesianOperand, error) {
	if !op.IsField {
		return cartesianOperand{side: sideConst, val: op.Val}, nil
	}
	switch op.Ref.Table {
	case leftTable:
		b, err := bind(leftMeta, op.Ref.Field)
		if err != nil {
			return cartesianOperand{}, err
		}
		return cartesianOperand{side: sideLeft, bound: b}, nil
	case rightTable:
		b, err := bind(rightMeta, op.Ref.Field)
		if err != nil {
			return cartesianOperand{}, err
		}
		return cartesianOperand{side: sideRight, bound: b}, nil
	default:
		return cartesianOperand{}, xerrors.New("CartesianFilter.resolve", xerrors.SchemaFieldNotExist)
	}
}

// Matches evaluates the bound predicate over one (left, right) row pair.
func (cf *CartesianFilter) Matches(leftRow, rightRow []byte) bool {
	lv, lnull := cf.evalOperand(cf.left, leftRow, rightRow)
	switch cf.Op {
	case IsNull:
		return lnull
	case IsNotNull:
		return !lnull
	}
	rv, rnull := cf.evalOperand(cf.right, leftRow, rightRow)
	if lnull || rnull {
		return false
	}
	return compareResult(cf.Op, catalog.Compare(lv, rv))
}

func (cf *CartesianFilter) evalOperand(op cartesianOperand, leftRow, rightRow []byte) (catalog.Value, bool) {
	switch op.side {
	case sideConst:
		return op.val, op.val.Null
	case sideLeft:
		return decodeBound(op.bound, leftRow, cf.leftNullBytes)
	default:
		return decodeBound(op.bound, rightRow, cf.rightNullBytes)
	}
}

func decodeBound(b *boundField, row []byte, nullBytes int) (catalog.Value, bool) {
	if page.BitSet(row[:nullBytes], b.bitIndex) {
		return catalog.Value{Type: b.meta.Type, Null: true}, true
	}
	raw := row[b.meta.Offset : b.meta.Offset+b.meta.Len]
	return catalog.DecodeFixed(b.meta.Type, raw), false
}
