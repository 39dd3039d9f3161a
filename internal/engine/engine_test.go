package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/executor"
	"github.com/xdbengine/storage/internal/filter"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateDropListTables(t *testing.T) {
	db := openTestDB(t)
	_, err := db.CreateTable("t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, db.ListTables())

	_, err = db.CreateTable("t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	assert.Error(t, err, "re-creating an existing table must fail")

	require.NoError(t, db.DropTable("t"))
	assert.Empty(t, db.ListTables())
}

func TestInsertAndSelect(t *testing.T) {
	db := openTestDB(t)
	_, err := db.CreateTable("t", []catalog.FieldSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "s", Type: catalog.TypeChars, Len: 4},
	})
	require.NoError(t, err)
	_, err = db.Insert("t", nil, []catalog.Value{catalog.NewInt(1), catalog.NewChars("ab")})
	require.NoError(t, err)
	_, err = db.Insert("t", nil, []catalog.Value{catalog.NewInt(2), catalog.NewChars("cd")})
	require.NoError(t, err)

	tb, err := db.OpenTable("t")
	require.NoError(t, err)
	pred := filter.NewFilter(filter.FieldOperand("t", "id"), filter.GE, filter.ValueOperand(catalog.NewInt(2)))
	plan := &executor.Plan{Scans: []executor.ScanSpec{ScanSpecFor("t", tb, pred)}}
	res, err := db.Select(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"id | s", "2 | cd"}, res.Lines)
}

func TestReopenLoadsExistingTables(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, nil)
	require.NoError(t, err)
	_, err = db.CreateTable("t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	require.NoError(t, err)
	_, err = db.Insert("t", nil, []catalog.Value{catalog.NewInt(7)})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(dir, nil)
	require.NoError(t, err)
	defer db2.Close()
	assert.Equal(t, []string{"t"}, db2.ListTables())

	tb, err := db2.OpenTable("t")
	require.NoError(t, err)
	plan := &executor.Plan{Scans: []executor.ScanSpec{ScanSpecFor("t", tb, nil)}}
	res, err := db2.Select(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "7"}, res.Lines)
}

func TestUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	_, err := db.CreateTable("t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}})
	require.NoError(t, err)
	_, err = db.Insert("t", nil, []catalog.Value{catalog.NewInt(1)})
	require.NoError(t, err)

	n, err := db.Update("t", nil, "id", catalog.NewInt(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.Delete("t", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tb, err := db.OpenTable("t")
	require.NoError(t, err)
	plan := &executor.Plan{Scans: []executor.ScanSpec{ScanSpecFor("t", tb, nil)}}
	res, err := db.Select(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, res.Lines)
}
