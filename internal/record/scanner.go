package record

import (
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// RowFilter is the minimal predicate contract a scanner consumes. It is
// implemented by internal/filter's row-level Filter so that record stays
// free of any dependency on the filter package (it's the predicate that
// depends on the record shape, not the other way round).
type RowFilter interface {
	Matches(row []byte) bool
}

// FileScanner walks every live record of a file in RID order, applying an
// optional filter and limit, per spec.md §4.2 Scan.
type FileScanner struct {
	fh     *FileHandle
	pages  []page.Num
	pageIx int
	slot   int
	filter RowFilter
	limit  int
	seen   int
}

// NewScanner starts a scan from (page_num=1, slot=-1) conceptually;
// concretely it lists the file's current data pages once up front. limit
// <= 0 means unlimited.
func NewScanner(fh *FileHandle, filter RowFilter, limit int) (*FileScanner, error) {
	pages, err := fh.bp.AllocatedDataPages(fh.fileID)
	if err != nil {
		return nil, err
	}
	return &FileScanner{fh: fh, pages: pages, slot: -1, filter: filter, limit: limit}, nil
}

// Next returns the next matching (rid, row), or xerrors.RecordEOF when
// exhausted or the limit is reached.
func (s *FileScanner) Next() (page.RID, []byte, error) {
	for {
		if s.limit > 0 && s.seen >= s.limit {
			return page.RID{}, nil, xerrors.New("FileScanner.Next", xerrors.RecordEOF)
		}
		if s.pageIx >= len(s.pages) {
			return page.RID{}, nil, xerrors.New("FileScanner.Next", xerrors.RecordEOF)
		}
		num := s.pages[s.pageIx]
		h, err := s.fh.bp.GetThisPage(s.fh.fileID, num)
		if err != nil {
			return page.RID{}, nil, err
		}
		l := s.fh.layout
		s.slot++
		nextSlot := page.FirstSetBitFrom(l.bitmap(h.Page()), l.capacity, s.slot)
		if nextSlot < 0 {
			s.fh.bp.UnpinPage(h)
			s.pageIx++
			s.slot = -1
			continue
		}
		s.slot = nextSlot
		raw := l.slotBytes(h.Page(), nextSlot)
		row := make([]byte, len(raw))
		copy(row, raw)
		rid := page.RID{PageNum: num, Slot: int32(nextSlot)}
		s.fh.bp.UnpinPage(h)

		if s.filter != nil && !s.filter.Matches(row) {
			continue
		}
		s.seen++
		return rid, row, nil
	}
}
