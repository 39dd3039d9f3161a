package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/xerrors"
)

// AggFunc is one of spec.md §4.6's aggregation kinds.
type AggFunc int

const (
	AggMin AggFunc = iota
	AggMax
	AggAvg
	AggSum
	AggCount
)

// AggSpec is one SELECT-list aggregation slot, e.g. SUM(t.score) or
// COUNT(*) (CountStar true, Column zeroed).
type AggSpec struct {
	Func     AggFunc
	Column   Column
	CountStar bool
	Label    string
}

// AggregationOperator computes one row per group (or a single row with
// no GROUP BY), per spec.md §4.6 Aggregation: "MIN/MAX/AVG/SUM/COUNT;
// COUNT(*) counts rows; COUNT(col) and the others skip NULLs".
type AggregationOperator struct {
	child   Operator
	specs   []AggSpec
	groupBy []Column
	tables  Tables

	rows     []Tuple
	pos      int
	done     bool
}

func NewAggregationOperator(child Operator, specs []AggSpec, groupBy []Column, tables Tables) *AggregationOperator {
	return &AggregationOperator{child: child, specs: specs, groupBy: groupBy, tables: tables}
}

func (a *AggregationOperator) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}
	groups := make(map[string]*aggGroup)
	var order []string
	for {
		t, err := a.child.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return err
		}
		key, keyVals, err := a.groupKey(t)
		if err != nil {
			return err
		}
		g, ok := groups[key]
		if !ok {
			g = newAggGroup(len(a.specs), keyVals)
			groups[key] = g
			order = append(order, key)
		}
		if err := a.accumulate(g, t); err != nil {
			return err
		}
	}
	if len(a.groupBy) == 0 && len(order) == 0 {
		// spec.md §4.6: with no GROUP BY, aggregation emits exactly one
		// row even over zero input rows (COUNT(*) = 0, etc).
		g := newAggGroup(len(a.specs), nil)
		groups[""] = g
		order = []string{""}
	}
	sort.Strings(order)
	for _, k := range order {
		a.rows = append(a.rows, a.finalize(groups[k]))
	}
	return nil
}

type aggGroup struct {
	keyVals []catalog.Value
	count   []int64
	sum     []float64
	min     []catalog.Value
	max     []catalog.Value
	seen    []bool
	rowCount int64
}

func newAggGroup(n int, keyVals []catalog.Value) *aggGroup {
	return &aggGroup{
		keyVals: keyVals,
		count:   make([]int64, n),
		sum:     make([]float64, n),
		min:     make([]catalog.Value, n),
		max:     make([]catalog.Value, n),
		seen:    make([]bool, n),
	}
}

func (a *AggregationOperator) groupKey(t Tuple) (string, []catalog.Value, error) {
	if len(a.groupBy) == 0 {
		return "", nil, nil
	}
	vals := make([]catalog.Value, len(a.groupBy))
	var b strings.Builder
	for i, c := range a.groupBy {
		v, err := a.tables.columnValue(c, t, i)
		if err != nil {
			return "", nil, err
		}
		vals[i] = v
		b.WriteString(v.String())
		b.WriteByte('\x00')
	}
	return b.String(), vals, nil
}

func (a *AggregationOperator) accumulate(g *aggGroup, t Tuple) error {
	g.rowCount++
	for i, spec := range a.specs {
		if spec.CountStar {
			g.count[i]++
			continue
		}
		v, err := a.tables.columnValue(spec.Column, t, i)
		if err != nil {
			return err
		}
		if v.Null {
			continue // spec.md §4.6: non-COUNT(*) aggregates skip NULLs
		}
		g.count[i]++
		f := asFloat64(v)
		g.sum[i] += f
		if !g.seen[i] {
			g.min[i], g.max[i], g.seen[i] = v, v, true
			continue
		}
		if catalog.Compare(v, g.min[i]) < 0 {
			g.min[i] = v
		}
		if catalog.Compare(v, g.max[i]) > 0 {
			g.max[i] = v
		}
	}
	return nil
}

func asFloat64(v catalog.Value) float64 {
	if v.Type == catalog.TypeFloat {
		return float64(v.F)
	}
	return float64(v.I)
}

func (a *AggregationOperator) finalize(g *aggGroup) Tuple {
	vals := make([]catalog.Value, len(a.groupBy)+len(a.specs))
	copy(vals, g.keyVals)
	for i, spec := range a.specs {
		vals[len(a.groupBy)+i] = aggResult(spec, g, i)
	}
	return Tuple{Values: vals}
}

func aggResult(spec AggSpec, g *aggGroup, i int) catalog.Value {
	switch spec.Func {
	case AggCount:
		return catalog.NewInt(int32(g.count[i]))
	case AggSum:
		if !g.seen[i] {
			return catalog.NewNull(catalog.TypeFloat)
		}
		return sumResult(spec.Column, g.sum[i])
	case AggAvg:
		if !g.seen[i] || g.count[i] == 0 {
			return catalog.NewNull(catalog.TypeFloat)
		}
		return catalog.NewFloat(float32(g.sum[i] / float64(g.count[i])))
	case AggMin:
		if !g.seen[i] {
			return catalog.NewNull(spec.Column.fieldType())
		}
		return g.min[i]
	case AggMax:
		if !g.seen[i] {
			return catalog.NewNull(spec.Column.fieldType())
		}
		return g.max[i]
	}
	return catalog.Value{}
}

// sumResult keeps SUM over an INT column an INT (so SUM of integer
// scores isn't forced to FLOAT display), matching the rest of the
// column-type propagation in spec.md §4.5.
func sumResult(c Column, sum float64) catalog.Value {
	if c.fieldType() == catalog.TypeInt {
		return catalog.NewInt(int32(sum))
	}
	return catalog.NewFloat(float32(sum))
}

// fieldType is a placeholder resolved by Build against the bound
// column's declared type; Computed columns default to FLOAT.
func (c Column) fieldType() catalog.ColumnType {
	if c.Computed {
		return catalog.TypeFloat
	}
	return c.declaredType
}

func (a *AggregationOperator) Next() (Tuple, error) {
	if a.pos >= len(a.rows) {
		return Tuple{}, xerrors.New("AggregationOperator.Next", xerrors.RecordEOF)
	}
	t := a.rows[a.pos]
	a.pos++
	return t, nil
}

func (a *AggregationOperator) Schema() Schema {
	cols := make([]Column, 0, len(a.groupBy)+len(a.specs))
	cols = append(cols, a.groupBy...)
	for _, spec := range a.specs {
		cols = append(cols, Column{Label: spec.Label, Computed: true})
	}
	return Schema{Columns: cols}
}

func (a *AggregationOperator) Describe() string {
	return fmt.Sprintf("aggregate(groups=%d, funcs=%d)[%s]", len(a.groupBy), len(a.specs), a.child.Describe())
}
