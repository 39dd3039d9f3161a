package bufferpool

import "container/list"

// lruReplacer tracks the set of currently-unpinned frames in release
// order, per spec.md §4.1: "Victim() returns the least recently used.
// Pin(frame) removes; Unpin(frame) inserts at MRU end." Modeled on the
// teacher's use of container/list for its buffer pool's flush/LRU lists
// (server/innodb/buffer_pool/buffer_pool.go's flushList), simplified to a
// single plain LRU list since spec.md does not call for an InnoDB-style
// young/old sublist split.
type lruReplacer struct {
	order *list.List
	elems map[int]*list.Element // frameIdx -> list element
}

func newLRUReplacer() *lruReplacer {
	return &lruReplacer{order: list.New(), elems: make(map[int]*list.Element)}
}

// Unpin marks frameIdx evictable, inserting it at the MRU end.
func (r *lruReplacer) Unpin(frameIdx int) {
	if _, ok := r.elems[frameIdx]; ok {
		return
	}
	r.elems[frameIdx] = r.order.PushBack(frameIdx)
}

// Pin removes frameIdx from the evictable set.
func (r *lruReplacer) Pin(frameIdx int) {
	if e, ok := r.elems[frameIdx]; ok {
		r.order.Remove(e)
		delete(r.elems, frameIdx)
	}
}

// Victim returns the least-recently-used evictable frame, or (-1, false)
// if none are evictable.
func (r *lruReplacer) Victim() (int, bool) {
	e := r.order.Front()
	if e == nil {
		return -1, false
	}
	frameIdx := e.Value.(int)
	r.order.Remove(e)
	delete(r.elems, frameIdx)
	return frameIdx, true
}

// Size returns the count of currently evictable frames.
func (r *lruReplacer) Size() int {
	return r.order.Len()
}
