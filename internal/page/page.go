// Package page defines the fixed-size page abstraction shared by the
// buffer pool, record manager and B+Tree: a page is a flat byte block
// identified by a non-zero PageNum within one open file. It holds the
// bitmap and little-endian helpers the on-disk layouts are built from;
// the header page layout itself lives in internal/bufferpool and the
// slotted data page header in internal/record. The code style (small
// value types, explicit little-endian encode/decode pairs) follows the teacher's
// server/innodb/storage/wrapper/page package.
package page

import "encoding/binary"

// Size is the fixed page size in bytes (spec.md §3 default).
const Size = 8192

// Num identifies a page within one file. 0 is never a valid page number;
// page 1 is reserved for the file's header page.
type Num uint32

// Invalid is the zero value of Num, used as a "no page" sentinel.
const Invalid Num = 0

// HeaderPageNum is the fixed page number of a file's header page.
const HeaderPageNum Num = 1

// FirstDataPageNum is the first page number available for data.
const FirstDataPageNum Num = 2

// RID identifies one record: a page number plus a slot index.
type RID struct {
	PageNum Num
	Slot    int32
}

// Valid reports whether the RID could plausibly address a record.
func (r RID) Valid() bool { return r.PageNum != Invalid && r.Slot >= 0 }

// Page is one raw fixed-size block of page bytes.
type Page struct {
	Num  Num
	Data [Size]byte
}

// NewPage allocates a zeroed page with the given number.
func NewPage(num Num) *Page {
	return &Page{Num: num}
}

// --- little-endian primitive helpers, used by every on-disk layout ---

func PutU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }
func GetU32(b []byte, off int) uint32    { return binary.LittleEndian.Uint32(b[off : off+4]) }
func PutU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }
func GetU16(b []byte, off int) uint16    { return binary.LittleEndian.Uint16(b[off : off+2]) }
func PutI32(b []byte, off int, v int32)  { PutU32(b, off, uint32(v)) }
func GetI32(b []byte, off int) int32     { return int32(GetU32(b, off)) }
