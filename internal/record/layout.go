// Package record implements the slotted-page record manager described in
// spec.md §4.2: RecordFileHandle owns a file's record operations,
// RecordPageHandle (folded into file.go here) owns one page's slot
// bitmap, and RecordFileScanner walks all live records of a file. The
// code follows the teacher's record-wrapper conventions
// (server/innodb/storage/wrapper/record) for naming, but the binary
// layout itself is the simpler fixed-width slotted page spec.md defines,
// not InnoDB's compact row format.
package record

import "github.com/xdbengine/storage/internal/page"

// Slotted data page header, five 32-bit fields per spec.md §3/§6:
// {record_count, record_capacity, record_real_size, record_size_aligned,
// first_record_offset}.
const (
	offRecordCount       = 0
	offRecordCapacity    = 4
	offRecordRealSize    = 8
	offRecordSizeAligned = 12
	offFirstRecordOffset = 16
	HeaderSize           = 20
)

// capacityFor derives how many fixed-size slots of slotSize bytes fit on
// one page alongside the header and its per-slot occupancy bitmap, per
// spec.md §3: "Slot count is derived so that header + bitmap +
// capacity × slot_size ≤ page_size."
func capacityFor(slotSize int) int {
	if slotSize <= 0 {
		return 0
	}
	cap := (page.Size - HeaderSize) / slotSize
	for cap > 0 {
		if HeaderSize+page.BitmapBytes(cap)+cap*slotSize <= page.Size {
			return cap
		}
		cap--
	}
	return 0
}

// pageLayout captures everything derived once from a record size: the
// aligned slot size, slot capacity, and the bitmap/first-slot offsets. It
// never changes for the lifetime of a file (spec.md invariant 6).
type pageLayout struct {
	recordSize   int // record_real_size: unaligned row byte length
	slotSize     int // record_size_aligned: padded to 8 bytes
	capacity     int
	bitmapOffset int
	firstOffset  int // first_record_offset
}

func newPageLayout(recordSize int) pageLayout {
	slotSize := page.Align8(recordSize)
	if slotSize == 0 {
		slotSize = 8
	}
	capacity := capacityFor(slotSize)
	bitmapOffset := HeaderSize
	firstOffset := bitmapOffset + page.BitmapBytes(capacity)
	return pageLayout{
		recordSize:   recordSize,
		slotSize:     slotSize,
		capacity:     capacity,
		bitmapOffset: bitmapOffset,
		firstOffset:  firstOffset,
	}
}

func (l pageLayout) slotOffset(slot int) int {
	return l.firstOffset + slot*l.slotSize
}

func (l pageLayout) bitmap(p *page.Page) []byte {
	return p.Data[l.bitmapOffset:l.firstOffset]
}

func (l pageLayout) recordCount(p *page.Page) int {
	return int(page.GetU32(p.Data[:], offRecordCount))
}

func (l pageLayout) setRecordCount(p *page.Page, n int) {
	page.PutU32(p.Data[:], offRecordCount, uint32(n))
}

// initSlottedPage writes a fresh header into a zeroed page.
func (l pageLayout) initSlottedPage(p *page.Page) {
	page.PutU32(p.Data[:], offRecordCount, 0)
	page.PutU32(p.Data[:], offRecordCapacity, uint32(l.capacity))
	page.PutU32(p.Data[:], offRecordRealSize, uint32(l.recordSize))
	page.PutU32(p.Data[:], offRecordSizeAligned, uint32(l.slotSize))
	page.PutU32(p.Data[:], offFirstRecordOffset, uint32(l.firstOffset))
}

// slotBytes returns the mutable byte range for one slot.
func (l pageLayout) slotBytes(p *page.Page, slot int) []byte {
	off := l.slotOffset(slot)
	return p.Data[off : off+l.recordSize]
}
