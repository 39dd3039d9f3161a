package filter

import "github.com/xdbengine/storage/internal/catalog"

// FoldConstant implements spec.md §4.5's build-time constant folding: a
// Filter whose both sides are already-known constants (no field
// reference on either side) is evaluated once at plan time instead of
// per row. folded is false when either side is a field reference (the
// common case — nothing to fold). When folded is true, tautology means
// the predicate can be dropped (replaced with "always true"), and
// banAll means the entire scan it guards should be short-circuited to
// zero rows without touching storage at all.
func FoldConstant(f *Filter) (tautology, banAll, folded bool) {
	if f.Left.IsField || f.Right.IsField {
		return false, false, false
	}
	switch f.Op {
	case IsNull:
		return f.Left.Val.Null, !f.Left.Val.Null, true
	case IsNotNull:
		return !f.Left.Val.Null, f.Left.Val.Null, true
	}
	if f.Left.Val.Null || f.Right.Val.Null {
		return false, true, true
	}
	result := compareResult(f.Op, catalog.Compare(f.Left.Val, f.Right.Val))
	return result, !result, true
}
