package bptree

import (
	"sync"

	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// Metadata page (file page 2, right after the buffer pool's own bitmap
// header at page 1) layout: {u32 root, u32 keySize, byte keyType, byte
// unique}. Tree nodes occupy page 3 and up.
const (
	metaOffRoot     = 0
	metaOffKeySize  = 4
	metaOffKeyType  = 8
	metaOffUnique   = 9
	metaPageNum     = page.Num(2)
	firstNodePage   = page.Num(3)
)

// Tree is a disk-resident B+Tree secondary index, per spec.md §4.3: an
// ordered key -> RID mapping with an optional uniqueness constraint,
// built over internal/bufferpool exactly like internal/record is.
type Tree struct {
	mu       sync.Mutex
	bp       *bufferpool.BufferPool
	fileID   int
	keyType  catalog.ColumnType
	keySize  int
	unique   bool
	root     page.Num
	leafCap  int
	intCap   int
}

// Create makes a new, empty index file at path.
func Create(bp *bufferpool.BufferPool, path string, keyType catalog.ColumnType, keySize int, unique bool) (*Tree, error) {
	fileID, err := bp.CreateFile(path)
	if err != nil {
		return nil, err
	}
	metaH, err := bp.AllocatePage(fileID) // page 2
	if err != nil {
		return nil, err
	}
	if metaH.PageNum != metaPageNum {
		bp.UnpinPage(metaH)
		return nil, xerrors.New("bptree.Create", xerrors.GenericError)
	}
	rootH, err := bp.AllocatePage(fileID) // page 3: initial root leaf
	if err != nil {
		bp.UnpinPage(metaH)
		return nil, err
	}
	leafCap, intCap := capacities(keySize)
	(&leafNode{keySize: keySize}).encode(rootH.Page())
	bp.MarkDirty(rootH)
	bp.UnpinPage(rootH)

	writeMeta(metaH.Page(), rootH.PageNum, keySize, keyType, unique)
	bp.MarkDirty(metaH)
	bp.UnpinPage(metaH)

	return &Tree{
		bp: bp, fileID: fileID, keyType: keyType, keySize: keySize,
		unique: unique, root: rootH.PageNum, leafCap: leafCap, intCap: intCap,
	}, nil
}

// Open reopens an existing index file.
func Open(bp *bufferpool.BufferPool, path string) (*Tree, error) {
	fileID, err := bp.OpenFile(path)
	if err != nil {
		return nil, err
	}
	h, err := bp.GetThisPage(fileID, metaPageNum)
	if err != nil {
		return nil, err
	}
	root, keySize, keyType, unique := readMeta(h.Page())
	bp.UnpinPage(h)
	leafCap, intCap := capacities(keySize)
	return &Tree{
		bp: bp, fileID: fileID, keyType: keyType, keySize: keySize,
		unique: unique, root: root, leafCap: leafCap, intCap: intCap,
	}, nil
}

func writeMeta(p *page.Page, root page.Num, keySize int, keyType catalog.ColumnType, unique bool) {
	page.PutU32(p.Data[:], metaOffRoot, uint32(root))
	page.PutU32(p.Data[:], metaOffKeySize, uint32(keySize))
	p.Data[metaOffKeyType] = keyTypeByte(keyType)
	if unique {
		p.Data[metaOffUnique] = 1
	} else {
		p.Data[metaOffUnique] = 0
	}
}

func readMeta(p *page.Page) (root page.Num, keySize int, keyType catalog.ColumnType, unique bool) {
	root = page.Num(page.GetU32(p.Data[:], metaOffRoot))
	keySize = int(page.GetU32(p.Data[:], metaOffKeySize))
	keyType = byteKeyType(p.Data[metaOffKeyType])
	unique = p.Data[metaOffUnique] == 1
	return
}

func keyTypeByte(t catalog.ColumnType) byte {
	switch t {
	case catalog.TypeInt:
		return 1
	case catalog.TypeFloat:
		return 2
	case catalog.TypeDates:
		return 3
	case catalog.TypeText:
		return 4
	default:
		return 0 // CHARS
	}
}

func byteKeyType(b byte) catalog.ColumnType {
	switch b {
	case 1:
		return catalog.TypeInt
	case 2:
		return catalog.TypeFloat
	case 3:
		return catalog.TypeDates
	case 4:
		return catalog.TypeText
	default:
		return catalog.TypeChars
	}
}

// Close closes the underlying file without removing it.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bp.CloseFile(t.fileID)
}

// Sync flushes every dirty index page to disk.
func (t *Tree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bp.FlushAllPages(t.fileID)
}

func (t *Tree) saveRoot(newRoot page.Num) error {
	t.root = newRoot
	h, err := t.bp.GetThisPage(t.fileID, metaPageNum)
	if err != nil {
		return err
	}
	page.PutU32(h.Page().Data[:], metaOffRoot, uint32(newRoot))
	t.bp.MarkDirty(h)
	return t.bp.UnpinPage(h)
}

func (t *Tree) readNodeLeaf(num page.Num) (*Handle, *leafNode, error) {
	h, err := t.bp.GetThisPage(t.fileID, num)
	if err != nil {
		return nil, nil, err
	}
	return h, decodeLeaf(h.Page(), t.keySize), nil
}

func (t *Tree) readNodeInternal(num page.Num) (*Handle, *internalNode, error) {
	h, err := t.bp.GetThisPage(t.fileID, num)
	if err != nil {
		return nil, nil, err
	}
	return h, decodeInternal(h.Page(), t.keySize), nil
}

// Handle is a thin alias kept local so tree.go need not import bufferpool
// twice with a type name collision; it is exactly *bufferpool.Handle.
type Handle = bufferpool.Handle

// findChildIndex returns the child pointer to descend to for key within
// an internal node: the smallest i such that key < keys[i] selects
// children[i]; if key is >= every separator, the last child is used.
func (t *Tree) findChildIndex(in *internalNode, key []byte) page.Num {
	for i, k := range in.keys {
		if compareKeys(t.keyType, key, k) < 0 {
			return in.children[i]
		}
	}
	return in.children[len(in.children)-1]
}

// descendToLeaf walks from root to the leaf that would contain key,
// returning the path of internal page numbers visited (for split
// propagation) and the leaf's page number.
func (t *Tree) descendToLeaf(key []byte) (path []page.Num, leaf page.Num, err error) {
	cur := t.root
	for {
		h, err := t.bp.GetThisPage(t.fileID, cur)
		if err != nil {
			return nil, 0, err
		}
		leafPage := isLeaf(h.Page())
		if leafPage {
			t.bp.UnpinPage(h)
			return path, cur, nil
		}
		in := decodeInternal(h.Page(), t.keySize)
		t.bp.UnpinPage(h)
		path = append(path, cur)
		cur = t.findChildIndex(in, key)
	}
}

// InsertEntry inserts (key, rid) into the tree, splitting nodes as
// needed. If the tree is unique, a pre-existing equal key fails with
// xerrors.RecordDuplicateKey.
func (t *Tree) InsertEntry(key []byte, rid page.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leafNum, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	h, ln, err := t.readNodeLeaf(leafNum)
	if err != nil {
		return err
	}

	pos := len(ln.entries)
	for i, e := range ln.entries {
		c := compareKeys(t.keyType, key, e.key)
		if t.unique && c == 0 {
			t.bp.UnpinPage(h)
			return xerrors.New("Tree.InsertEntry", xerrors.RecordDuplicateKey)
		}
		if c < 0 {
			pos = i
			break
		}
	}
	entries := make([]leafEntry, 0, len(ln.entries)+1)
	entries = append(entries, ln.entries[:pos]...)
	entries = append(entries, leafEntry{key: append([]byte(nil), key...), rid: rid})
	entries = append(entries, ln.entries[pos:]...)

	if len(entries) <= t.leafCap {
		ln.entries = entries
		ln.encode(h.Page())
		t.bp.MarkDirty(h)
		return t.bp.UnpinPage(h)
	}

	// Split: left keeps the first half, right gets the rest and takes
	// over left's old next-leaf pointer; the right's first key is
	// promoted to the parent. The split point must fall strictly between
	// two different keys: findChildIndex routes a search for key==K to
	// the right child whenever K equals a separator, so if the natural
	// midpoint lands inside a run of duplicate keys and the separator
	// came out equal to entries still left on the left side,
	// descendToLeaf/Lookup would never reach those left-side duplicates
	// again. Push the split point past the duplicate run (or, if the
	// whole back half shares one key, pull it back before the run) so
	// every key ends up wholly on one side of the separator.
	mid := len(entries) / 2
	for mid < len(entries) && compareKeys(t.keyType, entries[mid].key, entries[mid-1].key) == 0 {
		mid++
	}
	if mid == len(entries) {
		mid = len(entries) / 2
		for mid > 1 && compareKeys(t.keyType, entries[mid].key, entries[mid-1].key) == 0 {
			mid--
		}
		if mid <= 0 {
			mid = 1 // the entire leaf holds duplicates of one key; no clean split exists
		}
	}
	leftEntries := entries[:mid]
	rightEntries := entries[mid:]

	rightH, err := t.bp.AllocatePage(t.fileID)
	if err != nil {
		t.bp.UnpinPage(h)
		return err
	}
	right := &leafNode{keySize: t.keySize, entries: append([]leafEntry(nil), rightEntries...), next: ln.next}
	right.encode(rightH.Page())
	t.bp.MarkDirty(rightH)

	left := &leafNode{keySize: t.keySize, entries: append([]leafEntry(nil), leftEntries...), next: rightH.PageNum}
	left.encode(h.Page())
	t.bp.MarkDirty(h)

	promoted := append([]byte(nil), rightEntries[0].key...)
	leftNum, rightNum := leafNum, rightH.PageNum
	t.bp.UnpinPage(h)
	t.bp.UnpinPage(rightH)

	return t.propagateSplit(path, leftNum, rightNum, promoted)
}

// propagateSplit inserts (promotedKey -> newRight) into the parent named
// by the tail of path, recursively splitting internal nodes and growing
// a new root when the whole path is exhausted.
func (t *Tree) propagateSplit(path []page.Num, leftChild, rightChild page.Num, promoted []byte) error {
	if len(path) == 0 {
		// leftChild was the old root: build a fresh root over both halves.
		rootH, err := t.bp.AllocatePage(t.fileID)
		if err != nil {
			return err
		}
		newRoot := &internalNode{keySize: t.keySize, keys: [][]byte{promoted}, children: []page.Num{leftChild, rightChild}}
		newRoot.encode(rootH.Page())
		t.bp.MarkDirty(rootH)
		num := rootH.PageNum
		t.bp.UnpinPage(rootH)
		return t.saveRoot(num)
	}

	parentNum := path[len(path)-1]
	h, in, err := t.readNodeInternal(parentNum)
	if err != nil {
		return err
	}

	pos := len(in.keys)
	for i, k := range in.keys {
		if compareKeys(t.keyType, promoted, k) < 0 {
			pos = i
			break
		}
	}
	keys := make([][]byte, 0, len(in.keys)+1)
	keys = append(keys, in.keys[:pos]...)
	keys = append(keys, promoted)
	keys = append(keys, in.keys[pos:]...)

	// children[pos] was the child that just split into (leftChild,
	// rightChild); replace it in place with both.
	children := make([]page.Num, 0, len(in.children)+1)
	children = append(children, in.children[:pos]...)
	children = append(children, leftChild, rightChild)
	children = append(children, in.children[pos+1:]...)

	if len(keys) <= t.intCap {
		in.keys, in.children = keys, children
		in.encode(h.Page())
		t.bp.MarkDirty(h)
		return t.bp.UnpinPage(h)
	}

	mid := len(keys) / 2
	midKey := keys[mid]
	leftKeys, rightKeys := keys[:mid], keys[mid+1:]
	leftChildren, rightChildren := children[:mid+1], children[mid+1:]

	rightH, err := t.bp.AllocatePage(t.fileID)
	if err != nil {
		t.bp.UnpinPage(h)
		return err
	}
	right := &internalNode{keySize: t.keySize, keys: append([][]byte(nil), rightKeys...), children: append([]page.Num(nil), rightChildren...)}
	right.encode(rightH.Page())
	t.bp.MarkDirty(rightH)

	left := &internalNode{keySize: t.keySize, keys: append([][]byte(nil), leftKeys...), children: append([]page.Num(nil), leftChildren...)}
	left.encode(h.Page())
	t.bp.MarkDirty(h)

	leftNum, rightNum := parentNum, rightH.PageNum
	t.bp.UnpinPage(h)
	t.bp.UnpinPage(rightH)

	return t.propagateSplit(path[:len(path)-1], leftNum, rightNum, midKey)
}

// DeleteEntry removes the (key, rid) pair, matching both the key bytes
// and the RID (a key may be associated with several RIDs when the index
// is not unique). Underflow is not rebalanced: spec.md §4.3 only
// requires correctness of lookups, and a sparsely populated leaf is
// still a valid leaf.
func (t *Tree) DeleteEntry(key []byte, rid page.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, leafNum, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	h, ln, err := t.readNodeLeaf(leafNum)
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range ln.entries {
		if compareKeys(t.keyType, e.key, key) == 0 && e.rid == rid {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.bp.UnpinPage(h)
		return xerrors.New("Tree.DeleteEntry", xerrors.RecordNotExist)
	}
	ln.entries = append(ln.entries[:idx], ln.entries[idx+1:]...)
	ln.encode(h.Page())
	t.bp.MarkDirty(h)
	return t.bp.UnpinPage(h)
}

// Lookup returns every RID whose key exactly matches key (used for the
// uniqueness probe and EQ scans).
func (t *Tree) Lookup(key []byte) ([]page.RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, leafNum, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	h, ln, err := t.readNodeLeaf(leafNum)
	if err != nil {
		return nil, err
	}
	defer t.bp.UnpinPage(h)
	var out []page.RID
	for _, e := range ln.entries {
		if compareKeys(t.keyType, e.key, key) == 0 {
			out = append(out, e.rid)
		}
	}
	return out, nil
}

// firstLeaf returns the leftmost leaf's page number, for unbounded range
// scans (e.g. NE, or LT/LE with no explicit lower bound).
func (t *Tree) firstLeaf() (page.Num, error) {
	cur := t.root
	for {
		h, err := t.bp.GetThisPage(t.fileID, cur)
		if err != nil {
			return 0, err
		}
		if isLeaf(h.Page()) {
			t.bp.UnpinPage(h)
			return cur, nil
		}
		in := decodeInternal(h.Page(), t.keySize)
		t.bp.UnpinPage(h)
		cur = in.children[0]
	}
}
