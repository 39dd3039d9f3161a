package executor

import (
	"fmt"
	"sort"

	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/xerrors"
)

// OrderKey is one (column, direction) pair of an ORDER BY list.
type OrderKey struct {
	Column Column
	Desc   bool
}

// OrderByOperator materializes its child then stable-sorts by a
// composite comparator over the listed (column, asc/desc) pairs, per
// spec.md §4.6 Order-by.
type OrderByOperator struct {
	child  Operator
	keys   []OrderKey
	tables Tables

	rows []Tuple
	pos  int
}

func NewOrderByOperator(child Operator, keys []OrderKey, tables Tables) *OrderByOperator {
	return &OrderByOperator{child: child, keys: keys, tables: tables}
}

func (o *OrderByOperator) Init() error {
	if err := o.child.Init(); err != nil {
		return err
	}
	for {
		t, err := o.child.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return err
		}
		o.rows = append(o.rows, t)
	}
	var sortErr error
	sort.SliceStable(o.rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := o.less(o.rows[i], o.rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	return sortErr
}

func (o *OrderByOperator) less(a, b Tuple) (bool, error) {
	for _, k := range o.keys {
		av, err := o.tables.columnValue(k.Column, a, 0)
		if err != nil {
			return false, err
		}
		bv, err := o.tables.columnValue(k.Column, b, 0)
		if err != nil {
			return false, err
		}
		c := compareNullable(av, bv)
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0, nil
		}
		return c < 0, nil
	}
	return false, nil
}

// compareNullable orders NULLs first, matching the teacher's convention
// that an unset value sorts before any concrete one.
func compareNullable(a, b catalog.Value) int {
	if a.Null && b.Null {
		return 0
	}
	if a.Null {
		return -1
	}
	if b.Null {
		return 1
	}
	return catalog.Compare(a, b)
}

func (o *OrderByOperator) Next() (Tuple, error) {
	if o.pos >= len(o.rows) {
		return Tuple{}, xerrors.New("OrderByOperator.Next", xerrors.RecordEOF)
	}
	t := o.rows[o.pos]
	o.pos++
	return t, nil
}

func (o *OrderByOperator) Schema() Schema { return o.child.Schema() }

func (o *OrderByOperator) Describe() string {
	return fmt.Sprintf("orderby(keys=%d)[%s]", len(o.keys), o.child.Describe())
}
