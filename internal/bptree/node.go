package bptree

import (
	"github.com/xdbengine/storage/internal/page"
)

// Node header: {u32 isLeaf, u32 keyCount, u32 nextLeaf}. nextLeaf chains
// leaves left-to-right for range scans; it's unused on internal nodes.
const (
	nodeOffIsLeaf   = 0
	nodeOffKeyCount = 4
	nodeOffNext     = 8
	nodeHeaderSize  = 12
	ridSize         = 8 // page.Num(4) + slot(4)
	childPtrSize    = 4
)

// capacities computes the maximum key count for leaf and internal nodes
// given one key's fixed byte width, following the same "fits in one
// page" sizing spec.md §3 uses for slotted data pages.
func capacities(keySize int) (leafCap, internalCap int) {
	leafCap = (page.Size - nodeHeaderSize) / (keySize + ridSize)
	internalCap = (page.Size - nodeHeaderSize - childPtrSize) / (keySize + childPtrSize)
	return
}

// leafEntry is one decoded (key, rid) pair.
type leafEntry struct {
	key []byte
	rid page.RID
}

// leafNode is a leaf page fully decoded into Go slices: simpler to split
// and re-encode than shifting bytes in place, at the cost of a copy per
// node touched — an acceptable trade for this engine's scale.
type leafNode struct {
	keySize int
	entries []leafEntry
	next    page.Num
}

func decodeLeaf(p *page.Page, keySize int) *leafNode {
	n := keyCount(p)
	ln := &leafNode{keySize: keySize, next: nextLeaf(p), entries: make([]leafEntry, n)}
	for i := 0; i < n; i++ {
		off := nodeHeaderSize + i*(keySize+ridSize)
		key := make([]byte, keySize)
		copy(key, p.Data[off:off+keySize])
		ridOff := off + keySize
		ln.entries[i] = leafEntry{
			key: key,
			rid: page.RID{PageNum: page.Num(page.GetU32(p.Data[:], ridOff)), Slot: page.GetI32(p.Data[:], ridOff+4)},
		}
	}
	return ln
}

func (ln *leafNode) encode(p *page.Page) {
	p.Data = [page.Size]byte{}
	setLeaf(p, true)
	setKeyCount(p, len(ln.entries))
	setNextLeaf(p, ln.next)
	for i, e := range ln.entries {
		off := nodeHeaderSize + i*(ln.keySize+ridSize)
		copy(p.Data[off:off+ln.keySize], e.key)
		ridOff := off + ln.keySize
		page.PutU32(p.Data[:], ridOff, uint32(e.rid.PageNum))
		page.PutI32(p.Data[:], ridOff+4, e.rid.Slot)
	}
}

// internalNode is an internal page decoded into Go slices: children has
// one more element than keys (children[0] covers keys < keys[0]).
type internalNode struct {
	keySize  int
	keys     [][]byte
	children []page.Num
}

func decodeInternal(p *page.Page, keySize int) *internalNode {
	n := keyCount(p)
	in := &internalNode{keySize: keySize, keys: make([][]byte, n), children: make([]page.Num, n+1)}
	in.children[0] = internalFirstChild(p)
	for i := 0; i < n; i++ {
		off := internalEntryOff(i, keySize)
		key := make([]byte, keySize)
		copy(key, p.Data[off:off+keySize])
		in.keys[i] = key
		in.children[i+1] = page.Num(page.GetU32(p.Data[:], off+keySize))
	}
	return in
}

func (in *internalNode) encode(p *page.Page) {
	p.Data = [page.Size]byte{}
	setLeaf(p, false)
	setKeyCount(p, len(in.keys))
	setInternalFirstChild(p, in.children[0])
	for i, k := range in.keys {
		off := internalEntryOff(i, in.keySize)
		copy(p.Data[off:off+in.keySize], k)
		page.PutU32(p.Data[:], off+in.keySize, uint32(in.children[i+1]))
	}
}

func internalFirstChildOff() int { return nodeHeaderSize }
func internalEntryOff(i, keySize int) int {
	return nodeHeaderSize + childPtrSize + i*(keySize+childPtrSize)
}
func internalFirstChild(p *page.Page) page.Num {
	return page.Num(page.GetU32(p.Data[:], internalFirstChildOff()))
}

func isLeaf(p *page.Page) bool { return page.GetU32(p.Data[:], nodeOffIsLeaf) == 1 }
func setLeaf(p *page.Page, v bool) {
	x := uint32(0)
	if v {
		x = 1
	}
	page.PutU32(p.Data[:], nodeOffIsLeaf, x)
}
func keyCount(p *page.Page) int       { return int(page.GetU32(p.Data[:], nodeOffKeyCount)) }
func setKeyCount(p *page.Page, n int) { page.PutU32(p.Data[:], nodeOffKeyCount, uint32(n)) }
func nextLeaf(p *page.Page) page.Num  { return page.Num(page.GetU32(p.Data[:], nodeOffNext)) }
func setNextLeaf(p *page.Page, n page.Num) {
	page.PutU32(p.Data[:], nodeOffNext, uint32(n))
}
