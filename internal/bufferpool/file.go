package bufferpool

import (
	"os"

	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// pagedFile is one open OS file addressed in fixed page.Size blocks.
// Page 1 is the header page: {u32 page_count, u32 allocated_pages,
// bitmap} per spec.md §4.1/§6. The in-memory page_count/allocated_pages
// mirror the on-disk header and are kept in sync on every allocate/
// dispose so a crash between the two would only be caught by the
// (out-of-scope) WAL; per spec.md §1 we accept that gap.
type pagedFile struct {
	path  string
	f     *os.File
	id    int
	pages uint32 // page_count: highest page number ever allocated, +1
}

const (
	headerOffPageCount      = 0
	headerOffAllocatedPages = 4
	headerOffBitmap         = 8
)

// bitmapCapacity is the number of pages representable in one header page's
// bitmap region.
func bitmapCapacity() int {
	return (page.Size - headerOffBitmap) * 8
}

func createPagedFile(id int, path string) (*pagedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, xerrors.Wrap("createPagedFile", xerrors.IOErr, err)
	}
	pf := &pagedFile{path: path, f: f, id: id, pages: 2} // just the header page exists so far
	hdr := page.NewPage(page.HeaderPageNum)
	page.PutU32(hdr.Data[:], headerOffPageCount, pf.pages)
	page.PutU32(hdr.Data[:], headerOffAllocatedPages, 1)
	// Reserve bit 0 (the invalid sentinel page number) and bit 1 (this
	// header page itself) so AllocatePage never hands either out.
	page.BitSetTo(hdr.Data[headerOffBitmap:], int(page.Invalid), true)
	page.BitSetTo(hdr.Data[headerOffBitmap:], int(page.HeaderPageNum), true)
	if err := pf.writePage(hdr); err != nil {
		f.Close()
		return nil, err
	}
	return pf, nil
}

func openPagedFile(id int, path string) (*pagedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, xerrors.Wrap("openPagedFile", xerrors.IOErr, err)
	}
	pf := &pagedFile{path: path, f: f, id: id}
	hdr := page.NewPage(page.HeaderPageNum)
	if err := pf.readPage(hdr); err != nil {
		f.Close()
		return nil, err
	}
	pf.pages = page.GetU32(hdr.Data[:], headerOffPageCount)
	return pf, nil
}

func (pf *pagedFile) readPage(p *page.Page) error {
	off := int64(p.Num) * page.Size
	n, err := pf.f.ReadAt(p.Data[:], off)
	if err != nil && n == 0 {
		return xerrors.Wrap("pagedFile.readPage", xerrors.IOErr, err)
	}
	return nil
}

func (pf *pagedFile) writePage(p *page.Page) error {
	off := int64(p.Num) * page.Size
	if _, err := pf.f.WriteAt(p.Data[:], off); err != nil {
		return xerrors.Wrap("pagedFile.writePage", xerrors.IOErr, err)
	}
	return nil
}

func (pf *pagedFile) sync() error {
	if err := pf.f.Sync(); err != nil {
		return xerrors.Wrap("pagedFile.sync", xerrors.IOErr, err)
	}
	return nil
}

func (pf *pagedFile) close() error {
	return pf.f.Close()
}

// allocate finds the first free page (via the header bitmap), marks it
// allocated, bumps page_count if it extends the file, and returns the new
// page number. Caller must persist the returned zeroed page themselves;
// allocate only updates the header page in place.
func (pf *pagedFile) allocate(hdr *page.Page) (page.Num, error) {
	bitmap := hdr.Data[headerOffBitmap:]
	cap := bitmapCapacity()
	free := page.FirstZeroBit(bitmap, cap)
	if free < 0 {
		return page.Invalid, xerrors.New("pagedFile.allocate", xerrors.FrameNoMem)
	}
	page.BitSetTo(bitmap, free, true)
	allocated := page.GetU32(hdr.Data[:], headerOffAllocatedPages)
	page.PutU32(hdr.Data[:], headerOffAllocatedPages, allocated+1)
	if uint32(free) >= pf.pages {
		pf.pages = uint32(free) + 1
		page.PutU32(hdr.Data[:], headerOffPageCount, pf.pages)
	}
	return page.Num(free), nil
}

// dispose clears the bitmap bit for num in the (already-pinned) header page.
func (pf *pagedFile) dispose(hdr *page.Page, num page.Num) {
	bitmap := hdr.Data[headerOffBitmap:]
	page.BitSetTo(bitmap, int(num), false)
	allocated := page.GetU32(hdr.Data[:], headerOffAllocatedPages)
	if allocated > 0 {
		page.PutU32(hdr.Data[:], headerOffAllocatedPages, allocated-1)
	}
}
