package bptree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/page"
)

func newTestTree(t *testing.T, unique bool) *Tree {
	t.Helper()
	bp := bufferpool.New(256, nil)
	path := filepath.Join(t.TempDir(), "i.index")
	tr, err := Create(bp, path, catalog.TypeInt, 4, unique)
	require.NoError(t, err)
	return tr
}

func intKey(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// TestLookupFindsEveryDuplicateAcrossALeafSplit reproduces a non-unique
// index whose duplicate run for one key is just over leafCap: a naive
// split that cuts the run in two (rather than pushing the whole run onto
// one side of the separator) would leave the duplicates stranded on the
// left unreachable, since findChildIndex routes an exact match on the
// separator to the right child only.
func TestLookupFindsEveryDuplicateAcrossALeafSplit(t *testing.T) {
	tr := newTestTree(t, false)
	leafCap, _ := capacities(4)
	require.NoError(t, tr.InsertEntry(intKey(0), page.RID{PageNum: 10, Slot: 0}))
	// leafCap duplicates of 5, alongside the "0" sentinel already in the
	// same leaf, is one entry more than the leaf can hold: exactly the
	// reported scenario, forced to split mid-run.
	for i := 0; i < leafCap; i++ {
		require.NoError(t, tr.InsertEntry(intKey(5), page.RID{PageNum: 20, Slot: int32(i)}))
	}
	require.NoError(t, tr.InsertEntry(intKey(10), page.RID{PageNum: 30, Slot: 0}))

	rids, err := tr.Lookup(intKey(5))
	require.NoError(t, err)
	assert.Len(t, rids, leafCap, "every duplicate of the split key must still be found after the leaf split")

	sc, err := tr.CreateScanner(EQ, intKey(5))
	require.NoError(t, err)
	count := 0
	for {
		_, _, err := sc.Next()
		if err != nil {
			break
		}
		count++
	}
	assert.Equal(t, leafCap, count, "an EQ scan must see every duplicate too, not just the ones on one side of the split")
}

func TestUniqueIndexRejectsDuplicateKey(t *testing.T) {
	tr := newTestTree(t, true)
	require.NoError(t, tr.InsertEntry(intKey(1), page.RID{PageNum: 1, Slot: 0}))
	err := tr.InsertEntry(intKey(1), page.RID{PageNum: 1, Slot: 1})
	assert.Error(t, err)
}

func TestRangeScanAscendingOrder(t *testing.T) {
	tr := newTestTree(t, true)
	for _, v := range []int32{5, 1, 3, 4, 2} {
		require.NoError(t, tr.InsertEntry(intKey(v), page.RID{PageNum: page.Num(v), Slot: 0}))
	}
	sc, err := tr.CreateScanner(GE, intKey(2))
	require.NoError(t, err)
	var got []int32
	for {
		k, _, err := sc.Next()
		if err != nil {
			break
		}
		got = append(got, int32(uint32(k[0])|uint32(k[1])<<8|uint32(k[2])<<16|uint32(k[3])<<24))
	}
	assert.Equal(t, []int32{2, 3, 4, 5}, got)
}

func TestDeleteEntryRemovesExactRID(t *testing.T) {
	tr := newTestTree(t, false)
	rid1 := page.RID{PageNum: 1, Slot: 0}
	rid2 := page.RID{PageNum: 1, Slot: 1}
	require.NoError(t, tr.InsertEntry(intKey(7), rid1))
	require.NoError(t, tr.InsertEntry(intKey(7), rid2))
	require.NoError(t, tr.DeleteEntry(intKey(7), rid1))

	rids, err := tr.Lookup(intKey(7))
	require.NoError(t, err)
	assert.Equal(t, []page.RID{rid2}, rids)
}
