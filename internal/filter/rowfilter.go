package filter

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// boundField is a field operand resolved against a table's metadata: its
// type/offset/len plus its NULL-bitmap bit index (spec.md §3's leading
// bitmap, one bit per declared field including the synthetic trx column).
type boundField struct {
	meta     catalog.FieldMeta
	bitIndex int
}

// Filter is a single `(LHS, op, RHS)` row-level predicate, per spec.md
// §4.5. It implements record.RowFilter so a *Filter can be passed
// straight to record.NewScanner.
type Filter struct {
	Left, Right Operand
	Op          CompOp

	bound      bool
	nullBytes  int
	leftBound  *boundField
	rightBound *boundField
}

// NewFilter builds an unbound filter; call BindTable before Matches.
func NewFilter(left Operand, op CompOp, right Operand) *Filter {
	return &Filter{Left: left, Right: right, Op: op}
}

// BindTable resolves every field operand against meta, recording each
// one's offset and NULL-bit position. A single Filter only ever
// references one table at row-evaluation time (join predicates use
// CartesianFilter instead).
func (f *Filter) BindTable(meta *catalog.TableMeta) error {
	f.nullBytes = meta.NullBitmapBytes
	if f.Left.IsField {
		b, err := bind(meta, f.Left.Ref.Field)
		if err != nil {
			return err
		}
		f.leftBound = b
	}
	if f.Right.IsField {
		b, err := bind(meta, f.Right.Ref.Field)
		if err != nil {
			return err
		}
		f.rightBound = b
	}
	f.bound = true
	return nil
}

func bind(meta *catalog.TableMeta, field string) (*boundField, error) {
	idx := meta.FieldIndex(field)
	if idx < 0 {
		return nil, xerrors.New("filter.bind", xerrors.SchemaFieldNotExist)
	}
	return &boundField{meta: meta.Fields[idx], bitIndex: meta.NullBit(idx)}, nil
}

// Matches implements record.RowFilter.
func (f *Filter) Matches(row []byte) bool {
	lv, lnull := f.eval(f.Left, f.leftBound, row)
	switch f.Op {
	case IsNull:
		return lnull
	case IsNotNull:
		return !lnull
	}
	rv, rnull := f.eval(f.Right, f.rightBound, row)
	// NULL op anything is false (spec.md §4.5), IS [NOT] NULL excepted above.
	if lnull || rnull {
		return false
	}
	return compareResult(f.Op, catalog.Compare(lv, rv))
}

func (f *Filter) eval(op Operand, bound *boundField, row []byte) (catalog.Value, bool) {
	if !op.IsField {
		return op.Val, op.Val.Null
	}
	if page.BitSet(row[:f.nullBytes], bound.bitIndex) {
		return catalog.Value{Type: bound.meta.Type, Null: true}, true
	}
	raw := row[bound.meta.Offset : bound.meta.Offset+bound.meta.Len]
	return catalog.DecodeFixed(bound.meta.Type, raw), false
}

// IndexEligible reports whether f is a single `field op constant`
// predicate over a non-NULL constant with a relational (not IS/IS NOT)
// operator — the shape spec.md §4.4 "Index selection for scan" allows a
// table to push down onto a B+Tree scanner instead of a full file scan.
// The field name and a normalized (field-on-left) operator/value are
// returned so the caller need not handle the mirrored case itself.
func (f *Filter) IndexEligible() (field string, op CompOp, val catalog.Value, ok bool) {
	switch f.Op {
	case IsNull, IsNotNull:
		return "", 0, catalog.Value{}, false
	}
	if f.Left.IsField && !f.Right.IsField && !f.Right.Val.Null {
		return f.Left.Ref.Field, f.Op, f.Right.Val, true
	}
	if f.Right.IsField && !f.Left.IsField && !f.Left.Val.Null {
		return f.Right.Ref.Field, mirror(f.Op), f.Left.Val, true
	}
	return "", 0, catalog.Value{}, false
}

// mirror flips an operator when the field operand was on the right,
// e.g. `5 < x` becomes `x > 5`.
func mirror(op CompOp) CompOp {
	switch op {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	default:
		return op
	}
}
