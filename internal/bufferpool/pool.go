// Package bufferpool implements the LRU-governed frame cache over paged
// files described in spec.md §4.1, modeled on the teacher's
// server/innodb/buffer_pool.BufferPool: one mutex-guarded frame table,
// free-frame reuse before LRU eviction, and structured logging of faults
// and evictions via the shared logger package.
package bufferpool

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
	"github.com/xdbengine/storage/logger"
)

// MaxOpenFiles bounds how many paged files one pool can hold open at once
// (spec.md §4.1's MAX_OPEN_FILE).
const MaxOpenFiles = 32

// frame is one in-memory cache slot: a page plus its pin/dirty bookkeeping.
type frame struct {
	fileID   int
	pageNum  page.Num
	data     page.Page
	dirty    bool
	pinCount int32
	valid    bool // false for a free (never-used or evicted-and-cleared) frame
}

// Handle is a pinned reference to one frame, returned by GetThisPage.
// Callers mutate Page().Data in place, then MarkDirty and UnpinPage.
type Handle struct {
	pool     *BufferPool
	frameIdx int
	FileID   int
	PageNum  page.Num
}

// Page returns the mutable backing page for this handle.
func (h *Handle) Page() *page.Page {
	return &h.pool.frames[h.frameIdx].data
}

// Stats mirrors the teacher's buffer_pool/stats.go hit/miss counters, kept
// in-process only (no metrics-reporting pipeline; spec.md §1 Non-goals).
type Stats struct {
	Hits, Misses, Reads, Writes, Evictions uint64
}

// BufferPool is a fixed-size frame cache over up to MaxOpenFiles paged
// files, per spec.md §4.1.
type BufferPool struct {
	mu sync.Mutex

	frames    []frame
	freeList  []int // indices of unused frames: never used, or released by CloseFile/DisposePage
	replacer  *lruReplacer
	table     map[fileKey]int // (fileID,pageNum) -> frameIdx
	files     map[int]*pagedFile
	nextFileID int

	stats Stats
	log   *logrus.Logger
}

type fileKey struct {
	fileID  int
	pageNum page.Num
}

// New creates a buffer pool with the given number of frames. log may be
// nil, in which case logging is discarded.
func New(numFrames int, log *logrus.Logger) *BufferPool {
	if log == nil {
		log = logger.Discard()
	}
	bp := &BufferPool{
		frames:   make([]frame, numFrames),
		replacer: newLRUReplacer(),
		table:    make(map[fileKey]int),
		files:    make(map[int]*pagedFile),
		log:      log,
	}
	bp.freeList = make([]int, numFrames)
	for i := range bp.freeList {
		bp.freeList[i] = i
	}
	return bp
}

// CreateFile creates a new paged file at path and opens it, returning its
// file_id.
func (bp *BufferPool) CreateFile(path string) (int, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if len(bp.files) >= MaxOpenFiles {
		return 0, xerrors.New("BufferPool.CreateFile", xerrors.BufferPoolClosed)
	}
	pf, err := createPagedFile(bp.nextFileID, path)
	if err != nil {
		return 0, err
	}
	id := bp.nextFileID
	bp.nextFileID++
	bp.files[id] = pf
	bp.log.Debugf("bufferpool: created file %s as id=%d", path, id)
	return id, nil
}

// OpenFile opens an existing paged file, returning its file_id.
func (bp *BufferPool) OpenFile(path string) (int, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if len(bp.files) >= MaxOpenFiles {
		return 0, xerrors.New("BufferPool.OpenFile", xerrors.BufferPoolClosed)
	}
	pf, err := openPagedFile(bp.nextFileID, path)
	if err != nil {
		return 0, err
	}
	id := bp.nextFileID
	bp.nextFileID++
	bp.files[id] = pf
	bp.log.Debugf("bufferpool: opened file %s as id=%d", path, id)
	return id, nil
}

// CloseFile flushes and closes fileID, evicting its frames from the pool.
func (bp *BufferPool) CloseFile(fileID int) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return xerrors.New("BufferPool.CloseFile", xerrors.BufferPoolClosed)
	}
	if err := bp.flushAllLocked(fileID); err != nil {
		return err
	}
	for key, idx := range bp.table {
		if key.fileID == fileID {
			bp.evictFrameLocked(idx, true)
			delete(bp.table, key)
		}
	}
	if err := pf.close(); err != nil {
		return err
	}
	delete(bp.files, fileID)
	return nil
}

// DropFile closes (if open) and removes the underlying file on disk.
func (bp *BufferPool) DropFile(path string, fileID int) error {
	if fileID >= 0 {
		_ = bp.CloseFile(fileID)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrap("BufferPool.DropFile", xerrors.IOErr, err)
	}
	return nil
}

// AllocatedDataPages returns every data page number (page >= 2) currently
// marked allocated in fileID's header bitmap, in ascending order. The
// record manager uses this instead of a raw page-number range scan so
// that a disposed-and-not-yet-reused page number is never mistaken for a
// live data page.
func (bp *BufferPool) AllocatedDataPages(fileID int) ([]page.Num, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return nil, xerrors.New("BufferPool.AllocatedDataPages", xerrors.BufferPoolClosed)
	}
	hdrIdx, err := bp.fetchLocked(pf, page.HeaderPageNum)
	if err != nil {
		return nil, err
	}
	bp.pinLocked(hdrIdx)
	defer bp.unpinLocked(hdrIdx, false)
	bitmap := bp.frames[hdrIdx].data.Data[headerOffBitmap:]
	var out []page.Num
	for i := int(page.FirstDataPageNum); i < int(pf.pages); i++ {
		if !page.BitSet(bitmap, i) {
			continue
		}
		out = append(out, page.Num(i))
	}
	return out, nil
}

// GetPageCount returns one more than the highest page number ever
// allocated in fileID (page numbers start at 1, the header page).
func (bp *BufferPool) GetPageCount(fileID int) (int, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return 0, xerrors.New("BufferPool.GetPageCount", xerrors.BufferPoolClosed)
	}
	return int(pf.pages), nil
}

// AllocatePage allocates a fresh zeroed page in fileID and returns it
// pinned, per spec.md §4.1.
func (bp *BufferPool) AllocatePage(fileID int) (*Handle, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return nil, xerrors.New("BufferPool.AllocatePage", xerrors.BufferPoolClosed)
	}
	hdrIdx, err := bp.fetchLocked(pf, page.HeaderPageNum)
	if err != nil {
		return nil, err
	}
	bp.pinLocked(hdrIdx)
	num, err := pf.allocate(&bp.frames[hdrIdx].data)
	if err != nil {
		bp.unpinLocked(hdrIdx, false)
		return nil, err
	}
	bp.frames[hdrIdx].dirty = true
	bp.unpinLocked(hdrIdx, false)

	idx, err := bp.newFrameLocked(pf, num)
	if err != nil {
		return nil, err
	}
	bp.frames[idx].data = page.Page{Num: num} // zeroed
	bp.frames[idx].dirty = true
	bp.pinLocked(idx)
	bp.table[fileKey{fileID, num}] = idx
	return &Handle{pool: bp, frameIdx: idx, FileID: fileID, PageNum: num}, nil
}

// DisposePage frees page num in fileID: clears the header bitmap bit and
// evicts/frees its frame if resident.
func (bp *BufferPool) DisposePage(fileID int, num page.Num) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return xerrors.New("BufferPool.DisposePage", xerrors.BufferPoolClosed)
	}
	hdrIdx, err := bp.fetchLocked(pf, page.HeaderPageNum)
	if err != nil {
		return err
	}
	bp.pinLocked(hdrIdx)
	pf.dispose(&bp.frames[hdrIdx].data, num)
	bp.frames[hdrIdx].dirty = true
	bp.unpinLocked(hdrIdx, false)

	key := fileKey{fileID, num}
	if idx, ok := bp.table[key]; ok {
		bp.replacer.Pin(idx) // remove from evictable set if present
		bp.evictFrameLocked(idx, true)
		delete(bp.table, key)
	}
	return nil
}

// GetThisPage pins and returns the page (fileID, num), faulting it in
// from disk if not already cached.
func (bp *BufferPool) GetThisPage(fileID int, num page.Num) (*Handle, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pf, ok := bp.files[fileID]
	if !ok {
		return nil, xerrors.New("BufferPool.GetThisPage", xerrors.BufferPoolClosed)
	}
	if num == page.Invalid || num >= page.Num(pf.pages) {
		return nil, xerrors.New("BufferPool.GetThisPage", xerrors.BufferPoolInvalidPageNum)
	}
	idx, err := bp.fetchLocked(pf, num)
	if err != nil {
		return nil, err
	}
	bp.pinLocked(idx)
	return &Handle{pool: bp, frameIdx: idx, FileID: fileID, PageNum: num}, nil
}

// MarkDirty marks the frame behind h as needing a flush before eviction.
func (bp *BufferPool) MarkDirty(h *Handle) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.frames[h.frameIdx].dirty = true
}

// UnpinPage releases one pin on h's frame, making it evictable once the
// pin count reaches zero.
func (bp *BufferPool) UnpinPage(h *Handle) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f := &bp.frames[h.frameIdx]
	if f.pinCount <= 0 {
		return xerrors.New("BufferPool.UnpinPage", xerrors.BufferPoolInvalidPageNum)
	}
	bp.unpinLocked(h.frameIdx, false)
	return nil
}

// FlushAllPages writes every dirty frame of fileID to disk and syncs it.
func (bp *BufferPool) FlushAllPages(fileID int) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushAllLocked(fileID)
}

// Stats returns a snapshot of the pool's hit/miss counters.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.stats
}

// --- internals (caller holds bp.mu) ---

func (bp *BufferPool) flushAllLocked(fileID int) error {
	pf, ok := bp.files[fileID]
	if !ok {
		return xerrors.New("BufferPool.flushAllLocked", xerrors.BufferPoolClosed)
	}
	for key, idx := range bp.table {
		if key.fileID != fileID {
			continue
		}
		f := &bp.frames[idx]
		if f.dirty {
			if err := pf.writePage(&f.data); err != nil {
				return err
			}
			bp.stats.Writes++
			f.dirty = false
		}
	}
	return pf.sync()
}

// fetchLocked returns the frame index for (pf.id, num), faulting it in if
// necessary. It does not pin.
func (bp *BufferPool) fetchLocked(pf *pagedFile, num page.Num) (int, error) {
	key := fileKey{pf.id, num}
	if idx, ok := bp.table[key]; ok {
		bp.stats.Hits++
		return idx, nil
	}
	bp.stats.Misses++
	bp.log.Debugf("bufferpool: page fault %s", key)
	idx, err := bp.newFrameLocked(pf, num)
	if err != nil {
		return 0, err
	}
	if err := pf.readPage(&bp.frames[idx].data); err != nil {
		return 0, err
	}
	bp.stats.Reads++
	bp.table[key] = idx
	return idx, nil
}

// newFrameLocked obtains a frame slot for (pf.id, num): a free frame if one
// exists, else an LRU victim (flushed first if dirty).
func (bp *BufferPool) newFrameLocked(pf *pagedFile, num page.Num) (int, error) {
	var idx int
	if n := len(bp.freeList); n > 0 {
		idx = bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
	} else {
		victim, ok := bp.replacer.Victim()
		if !ok {
			return 0, xerrors.New("BufferPool.newFrameLocked", xerrors.FrameNoMem)
		}
		bp.log.Debugf("bufferpool: evicting frame %d %s", victim, fileKey{bp.frames[victim].fileID, bp.frames[victim].pageNum})
		bp.evictFrameLocked(victim, false) // idx is reassigned below, not freed
		idx = victim
		bp.stats.Evictions++
	}
	bp.frames[idx] = frame{fileID: pf.id, pageNum: num, valid: true}
	return idx, nil
}

// evictFrameLocked flushes f if dirty, then removes it from the frame
// table and clears it, per spec.md invariant 1: "A dirty frame is never
// evicted without being flushed first." addToFreeList must be false when
// the caller is about to immediately reassign idx to a different page
// (newFrameLocked's victim path) — otherwise idx would be live in
// bp.table for the new page and sitting in freeList at the same time,
// letting the next free-frame allocation silently steal it out from
// under the page that was just faulted in.
func (bp *BufferPool) evictFrameLocked(idx int, addToFreeList bool) {
	f := &bp.frames[idx]
	if !f.valid {
		return
	}
	if f.dirty {
		if pf, ok := bp.files[f.fileID]; ok {
			if err := pf.writePage(&f.data); err != nil {
				bp.log.Warnf("bufferpool: flush on evict failed for file=%d page=%d: %v", f.fileID, f.pageNum, err)
			} else {
				bp.stats.Writes++
			}
		}
	}
	delete(bp.table, fileKey{f.fileID, f.pageNum})
	bp.frames[idx] = frame{}
	if addToFreeList {
		bp.freeList = append(bp.freeList, idx)
	}
}

func (bp *BufferPool) pinLocked(idx int) {
	bp.frames[idx].pinCount++
	bp.replacer.Pin(idx)
}

func (bp *BufferPool) unpinLocked(idx int, forceDirty bool) {
	f := &bp.frames[idx]
	if forceDirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	if f.pinCount == 0 {
		bp.replacer.Unpin(idx)
	}
}

func (k fileKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.fileID, k.pageNum)
}
