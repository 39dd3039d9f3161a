package executor

import (
	"fmt"

	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/xerrors"
)

// JoinOperator is a nested-loop join, per spec.md §4.6: the right child
// is materialized once (on Init), then for each left tuple every
// materialized right tuple is combined and passed through the joined
// predicate.
type JoinOperator struct {
	left, right          Operator
	pred                 *filter.CartesianFilter
	leftTable, rightTable string // names the join predicate was bound against

	rightBuf   []Tuple
	leftCur    Tuple
	haveLeft   bool
	rightIx    int
}

// NewJoinOperator builds a nested-loop join of left and right. pred may
// be nil for a cross join. leftTable/rightTable name the two sides pred
// was bound to (CartesianFilter.Bind), used to pick the right row
// slices out of a combined tuple's Rows map.
func NewJoinOperator(left, right Operator, pred *filter.CartesianFilter, leftTable, rightTable string) *JoinOperator {
	return &JoinOperator{left: left, right: right, pred: pred, leftTable: leftTable, rightTable: rightTable}
}

func (j *JoinOperator) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	if err := j.right.Init(); err != nil {
		return err
	}
	for {
		t, err := j.right.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return err
		}
		j.rightBuf = append(j.rightBuf, t)
	}
	return nil
}

func (j *JoinOperator) Next() (Tuple, error) {
	for {
		if !j.haveLeft {
			t, err := j.left.Next()
			if err != nil {
				return Tuple{}, err
			}
			j.leftCur, j.haveLeft, j.rightIx = t, true, 0
		}
		for j.rightIx < len(j.rightBuf) {
			r := j.rightBuf[j.rightIx]
			j.rightIx++
			combined := mergeTuples(j.leftCur, r)
			if j.pred == nil || j.pred.Matches(combined.Rows[j.leftTable], combined.Rows[j.rightTable]) {
				return combined, nil
			}
		}
		j.haveLeft = false
	}
}

func (j *JoinOperator) Schema() Schema {
	s := j.left.Schema()
	s.Columns = append(append([]Column(nil), s.Columns...), j.right.Schema().Columns...)
	return s
}

func (j *JoinOperator) Describe() string {
	kind := "cross"
	if j.pred != nil {
		kind = "nested-loop"
	}
	return fmt.Sprintf("join(%s, on=%s)[left=%s right=%s]", kind, j.leftTable, j.left.Describe(), j.right.Describe())
}

// joinFilterOperator applies an explicit join condition over a tuple
// stream that already carries every joined table's row (built by the
// bottom-up scan composition in build.go), narrowing the cross product
// down to matching combinations without re-joining.
type joinFilterOperator struct {
	child                 Operator
	pred                  *filter.CartesianFilter
	leftTable, rightTable string
}

func (f *joinFilterOperator) Init() error { return f.child.Init() }

func (f *joinFilterOperator) Next() (Tuple, error) {
	for {
		t, err := f.child.Next()
		if err != nil {
			return Tuple{}, err
		}
		if f.pred.Matches(t.Rows[f.leftTable], t.Rows[f.rightTable]) {
			return t, nil
		}
	}
}

func (f *joinFilterOperator) Schema() Schema { return f.child.Schema() }

func (f *joinFilterOperator) Describe() string {
	return fmt.Sprintf("joinfilter(on=%s,%s)[%s]", f.leftTable, f.rightTable, f.child.Describe())
}
