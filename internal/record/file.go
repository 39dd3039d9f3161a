package record

import (
	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// FileHandle owns one data file's record operations: insert, in-place
// update, delete, and page rotation for insert target selection, per
// spec.md §4.2.
type FileHandle struct {
	bp       *bufferpool.BufferPool
	fileID   int
	layout   pageLayout
	lastPage page.Num // the "currently cached page" insert rotates from
}

// NewFileHandle wraps an already-open data file. recordSize is the
// table's fixed record_size (NULL bitmap + trx column + all columns).
func NewFileHandle(bp *bufferpool.BufferPool, fileID int, recordSize int) *FileHandle {
	return &FileHandle{bp: bp, fileID: fileID, layout: newPageLayout(recordSize), lastPage: page.FirstDataPageNum}
}

// RecordSize returns the fixed row size this handle was opened with.
func (fh *FileHandle) RecordSize() int { return fh.layout.recordSize }

// InsertRecord writes data (len must equal RecordSize) into the first
// available slot, rotating through existing data pages before allocating
// a new one, per spec.md §4.2 Insert.
func (fh *FileHandle) InsertRecord(data []byte) (page.RID, error) {
	if len(data) != fh.layout.recordSize {
		return page.RID{}, xerrors.New("FileHandle.InsertRecord", xerrors.RecordInvalidKey)
	}
	pages, err := fh.bp.AllocatedDataPages(fh.fileID)
	if err != nil {
		return page.RID{}, err
	}

	start := 0
	for i, num := range pages {
		if num == fh.lastPage {
			start = i
			break
		}
	}
	for i := 0; i < len(pages); i++ {
		num := pages[(start+i)%len(pages)]
		h, err := fh.bp.GetThisPage(fh.fileID, num)
		if err != nil {
			return page.RID{}, err
		}
		slot, ok := fh.insertIntoPage(h.Page())
		if ok {
			fh.writeRecordData(h.Page(), slot, data)
			fh.bp.MarkDirty(h)
			fh.bp.UnpinPage(h)
			fh.lastPage = num
			return page.RID{PageNum: num, Slot: int32(slot)}, nil
		}
		fh.bp.UnpinPage(h)
	}

	// No existing page had room: allocate a fresh one and init its header.
	h, err := fh.bp.AllocatePage(fh.fileID)
	if err != nil {
		return page.RID{}, err
	}
	fh.layout.initSlottedPage(h.Page())
	slot, ok := fh.insertIntoPage(h.Page())
	if !ok {
		fh.bp.UnpinPage(h)
		return page.RID{}, xerrors.New("FileHandle.InsertRecord", xerrors.RecordNoMem)
	}
	fh.writeRecordData(h.Page(), slot, data)
	fh.bp.MarkDirty(h)
	fh.bp.UnpinPage(h)
	fh.lastPage = h.PageNum
	return page.RID{PageNum: h.PageNum, Slot: int32(slot)}, nil
}

// insertIntoPage reserves the first free slot bit on p, reporting whether
// the page had room. Callers still need to write the record bytes
// themselves via writeRecordData once a slot is reserved.
func (fh *FileHandle) insertIntoPage(p *page.Page) (int, bool) {
	l := fh.layout
	count := l.recordCount(p)
	if count >= l.capacity {
		return 0, false
	}
	slot := page.FirstZeroBit(l.bitmap(p), l.capacity)
	if slot < 0 {
		return 0, false
	}
	page.BitSetTo(l.bitmap(p), slot, true)
	l.setRecordCount(p, count+1)
	return slot, true
}

// writeRecordData copies data into slot's byte range.
func (fh *FileHandle) writeRecordData(p *page.Page, slot int, data []byte) {
	copy(fh.layout.slotBytes(p, slot), data)
}

// GetRecord returns a copy of the live record at rid.
func (fh *FileHandle) GetRecord(rid page.RID) ([]byte, error) {
	h, err := fh.bp.GetThisPage(fh.fileID, rid.PageNum)
	if err != nil {
		return nil, err
	}
	defer fh.bp.UnpinPage(h)
	l := fh.layout
	if int(rid.Slot) >= l.capacity || !page.BitSet(l.bitmap(h.Page()), int(rid.Slot)) {
		return nil, xerrors.New("FileHandle.GetRecord", xerrors.RecordNotExist)
	}
	raw := l.slotBytes(h.Page(), int(rid.Slot))
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// UpdateRecordInPlace resolves rid's slot and calls updater with the
// mutable row bytes, never moving the row, per spec.md §4.2 Update.
func (fh *FileHandle) UpdateRecordInPlace(rid page.RID, updater func(row []byte)) error {
	h, err := fh.bp.GetThisPage(fh.fileID, rid.PageNum)
	if err != nil {
		return err
	}
	defer fh.bp.UnpinPage(h)
	l := fh.layout
	if int(rid.Slot) >= l.capacity || !page.BitSet(l.bitmap(h.Page()), int(rid.Slot)) {
		return xerrors.New("FileHandle.UpdateRecordInPlace", xerrors.RecordNotExist)
	}
	updater(l.slotBytes(h.Page(), int(rid.Slot)))
	fh.bp.MarkDirty(h)
	return nil
}

// DeleteRecord clears rid's slot bit. If the page becomes empty it is
// disposed back to the buffer pool's free list — this implementation
// never holds a page pinned across calls, so unlike the original source
// (spec.md §9 open question) there is no live scanner to collide with,
// and disposing cleanly is always safe.
func (fh *FileHandle) DeleteRecord(rid page.RID) error {
	h, err := fh.bp.GetThisPage(fh.fileID, rid.PageNum)
	if err != nil {
		return err
	}
	l := fh.layout
	if int(rid.Slot) >= l.capacity || !page.BitSet(l.bitmap(h.Page()), int(rid.Slot)) {
		fh.bp.UnpinPage(h)
		return xerrors.New("FileHandle.DeleteRecord", xerrors.RecordNotExist)
	}
	page.BitSetTo(l.bitmap(h.Page()), int(rid.Slot), false)
	count := l.recordCount(h.Page()) - 1
	l.setRecordCount(h.Page(), count)
	fh.bp.MarkDirty(h)
	fh.bp.UnpinPage(h)
	if count == 0 {
		_ = fh.bp.DisposePage(fh.fileID, rid.PageNum)
	}
	return nil
}
