package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/txn"
)

func newTestTable(t *testing.T, specs []catalog.FieldSpec) (*Table, *txn.Manager) {
	t.Helper()
	bp := bufferpool.New(64, nil)
	tb, err := Create(bp, t.TempDir(), "t", specs, nil)
	require.NoError(t, err)
	return tb, txn.NewManager()
}

func scanAll(t *testing.T, tb *Table, trx *txn.Trx) [][]byte {
	t.Helper()
	sc, err := tb.Scan(trx, nil)
	require.NoError(t, err)
	defer sc.Close()
	var rows [][]byte
	for {
		_, row, err := sc.Next()
		if err != nil {
			break
		}
		cp := make([]byte, len(row))
		copy(cp, row)
		rows = append(rows, cp)
	}
	return rows
}

func TestInsertAndScan(t *testing.T) {
	specs := []catalog.FieldSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "s", Type: catalog.TypeChars, Len: 4},
	}
	tb, mgr := newTestTable(t, specs)
	trx := mgr.AutoCommit()

	_, err := tb.Insert(trx, []catalog.Value{catalog.NewInt(1), catalog.NewChars("ab")})
	require.NoError(t, err)
	_, err = tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(2), catalog.NewChars("cd")})
	require.NoError(t, err)

	rows := scanAll(t, tb, mgr.AutoCommit())
	assert.Len(t, rows, 2)
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	tb, mgr := newTestTable(t, specs)

	_, err := tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)

	require.NoError(t, tb.CreateIndex("i", "id", true))

	_, err = tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(1)})
	require.Error(t, err)

	rows := scanAll(t, tb, mgr.AutoCommit())
	assert.Len(t, rows, 1, "the failed duplicate insert must not leave a row behind")
}

func TestIndexSelectedScan(t *testing.T) {
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	tb, mgr := newTestTable(t, specs)
	require.NoError(t, tb.CreateIndex("i", "id", false))

	for i := int32(1); i <= 5; i++ {
		_, err := tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(i)})
		require.NoError(t, err)
	}

	pred := filter.NewFilter(filter.FieldOperand("t", "id"), filter.GE, filter.ValueOperand(catalog.NewInt(3)))
	require.NoError(t, pred.BindTable(tb.Meta()))
	assert.NotEmpty(t, tb.IndexNameFor(pred), "a field>=const predicate over an indexed column should be index-eligible")

	sc, err := tb.Scan(mgr.AutoCommit(), pred)
	require.NoError(t, err)
	defer sc.Close()
	count := 0
	for {
		_, _, err := sc.Next()
		if err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 3, count)
}

func TestUpdateAttrReindexes(t *testing.T) {
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	tb, mgr := newTestTable(t, specs)
	require.NoError(t, tb.CreateIndex("i", "id", true))

	_, err := tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)

	n, err := tb.UpdateAttr(mgr.AutoCommit(), "id", catalog.NewInt(9), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pred := filter.NewFilter(filter.FieldOperand("t", "id"), filter.EQ, filter.ValueOperand(catalog.NewInt(9)))
	require.NoError(t, pred.BindTable(tb.Meta()))
	assert.Equal(t, "i", tb.IndexNameFor(pred))

	// a second row at the old key must now be insertable again.
	_, err = tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)
}

func TestDeleteUnderMultiStatementTrxDefersPhysicalMutation(t *testing.T) {
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	tb, mgr := newTestTable(t, specs)

	auto := mgr.AutoCommit()
	_, err := tb.Insert(auto, []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)

	trx := mgr.Begin()
	n, err := tb.Delete(trx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// not yet committed: the deleting transaction itself no longer sees
	// the row (its own delete is immediately visible to itself)...
	rowsForDeleter := scanAll(t, tb, trx)
	assert.Len(t, rowsForDeleter, 0)

	require.NoError(t, trx.Commit())
	rowsAfterCommit := scanAll(t, tb, mgr.AutoCommit())
	assert.Len(t, rowsAfterCommit, 0)
}

func TestRollbackRestoresDeletedRow(t *testing.T) {
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	tb, mgr := newTestTable(t, specs)

	_, err := tb.Insert(mgr.AutoCommit(), []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)

	trx := mgr.Begin()
	n, err := tb.Delete(trx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, trx.Rollback())

	rows := scanAll(t, tb, mgr.AutoCommit())
	assert.Len(t, rows, 1, "a rolled-back delete must restore visibility of the row")
}
