package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/table"
	"github.com/xdbengine/storage/internal/txn"
)

func newTable(t *testing.T, name string, specs []catalog.FieldSpec) *table.Table {
	t.Helper()
	bp := bufferpool.New(64, nil)
	tb, err := table.Create(bp, t.TempDir(), name, specs, nil)
	require.NoError(t, err)
	return tb
}

func insert(t *testing.T, tb *table.Table, trx *txn.Trx, vals ...catalog.Value) {
	t.Helper()
	_, err := tb.Insert(trx, vals)
	require.NoError(t, err)
}

func drainOutput(t *testing.T, out *OutputOperator) []string {
	t.Helper()
	lines, err := out.Drain()
	require.NoError(t, err)
	return lines
}

func TestScanWithPredicate(t *testing.T) {
	mgr := txn.NewManager()
	tb := newTable(t, "t", []catalog.FieldSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "s", Type: catalog.TypeChars, Len: 4},
	})
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(1), catalog.NewChars("ab"))
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(2), catalog.NewChars("cd"))

	pred := filter.NewFilter(filter.FieldOperand("t", "id"), filter.GE, filter.ValueOperand(catalog.NewInt(2)))
	plan := &Plan{
		Scans: []ScanSpec{{Alias: "t", Table: tb, Pred: pred}},
		Trx:   mgr.AutoCommit(),
	}
	out, _, err := Build(plan)
	require.NoError(t, err)
	lines := drainOutput(t, out)
	assert.Equal(t, []string{"id | s", "2 | cd"}, lines)
}

func TestBanAllShortCircuit(t *testing.T) {
	mgr := txn.NewManager()
	tb := newTable(t, "t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(1))

	pred := filter.NewFilter(
		filter.ValueOperand(catalog.NewInt(1)),
		filter.EQ,
		filter.ValueOperand(catalog.NewInt(2)),
	)
	plan := &Plan{Scans: []ScanSpec{{Alias: "t", Table: tb, Pred: pred}}, Trx: mgr.AutoCommit()}
	out, _, err := Build(plan)
	require.NoError(t, err)
	lines := drainOutput(t, out)
	assert.Equal(t, []string{"id"}, lines, "a statically-false predicate must short-circuit to zero rows")
}

func TestJoin(t *testing.T) {
	mgr := txn.NewManager()
	t1 := newTable(t, "t1", []catalog.FieldSpec{
		{Name: "k", Type: catalog.TypeInt}, {Name: "a", Type: catalog.TypeInt},
	})
	t2 := newTable(t, "t2", []catalog.FieldSpec{
		{Name: "k", Type: catalog.TypeInt}, {Name: "b", Type: catalog.TypeInt},
	})
	for _, r := range [][2]int32{{1, 10}, {2, 20}, {3, 30}} {
		insert(t, t1, mgr.AutoCommit(), catalog.NewInt(r[0]), catalog.NewInt(r[1]))
	}
	for _, r := range [][2]int32{{1, 100}, {2, 200}, {9, 900}} {
		insert(t, t2, mgr.AutoCommit(), catalog.NewInt(r[0]), catalog.NewInt(r[1]))
	}

	joinPred := filter.NewCartesianFilter(filter.FieldOperand("t1", "k"), filter.EQ, filter.FieldOperand("t2", "k"))
	plan := &Plan{
		Scans: []ScanSpec{{Alias: "t1", Table: t1}, {Alias: "t2", Table: t2}},
		Joins: []JoinSpec{{LeftTable: "t1", RightTable: "t2", Pred: joinPred}},
		Project: []Column{
			{Label: "a", Table: "t1", Field: "a"},
			{Label: "b", Table: "t2", Field: "b"},
		},
		Trx: mgr.AutoCommit(),
	}
	out, _, err := Build(plan)
	require.NoError(t, err)
	lines := drainOutput(t, out)
	assert.Equal(t, []string{"a | b", "10 | 100", "20 | 200"}, lines)
}

func TestAggregationSkipsNulls(t *testing.T) {
	mgr := txn.NewManager()
	tb := newTable(t, "t", []catalog.FieldSpec{{Name: "x", Type: catalog.TypeInt, Nullable: true}})
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(1))
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(2))
	insert(t, tb, mgr.AutoCommit(), catalog.NewNull(catalog.TypeInt))
	insert(t, tb, mgr.AutoCommit(), catalog.NewInt(4))

	plan := &Plan{
		Scans: []ScanSpec{{Alias: "t", Table: tb}},
		Agg: []AggSpec{
			{Func: AggCount, CountStar: true, Label: "count(*)"},
			{Func: AggAvg, Column: Column{Table: "t", Field: "x"}, Label: "avg(x)"},
		},
		Trx: mgr.AutoCommit(),
	}
	out, _, err := Build(plan)
	require.NoError(t, err)
	lines := drainOutput(t, out)
	assert.Equal(t, []string{"count(*) | avg(x)", "4 | 2.33"}, lines)
}

func TestOrderByDescending(t *testing.T) {
	mgr := txn.NewManager()
	tb := newTable(t, "t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	for _, v := range []int32{3, 1, 2} {
		insert(t, tb, mgr.AutoCommit(), catalog.NewInt(v))
	}
	plan := &Plan{
		Scans:   []ScanSpec{{Alias: "t", Table: tb}},
		OrderBy: []OrderKey{{Column: Column{Table: "t", Field: "id"}, Desc: true}},
		Trx:     mgr.AutoCommit(),
	}
	out, _, err := Build(plan)
	require.NoError(t, err)
	lines := drainOutput(t, out)
	assert.Equal(t, []string{"id", "3", "2", "1"}, lines)
}
