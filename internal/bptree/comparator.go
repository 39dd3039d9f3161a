// Package bptree implements the disk-resident B+Tree secondary index
// described in spec.md §4.3: ordered key -> RID leaves, range scans, and
// an optional uniqueness constraint, built over internal/bufferpool the
// same way internal/record is. Grounded in the teacher's
// server/innodb/manager.DefaultBPlusTreeManager for the node-cache /
// dirty-tracking shape, but using a from-scratch disk node format sized
// to spec.md's simpler single-column keys rather than InnoDB's compact
// row keys.
package bptree

import (
	"bytes"
	"math"
	"strings"

	"github.com/xdbengine/storage/internal/catalog"
)

// CompOp is a B+Tree scan comparison operator, per spec.md §4.3.
type CompOp int

const (
	EQ CompOp = iota
	LT
	LE
	GT
	GE
	NE
)

// compareKeys orders two raw key byte slices according to typ, following
// the same per-type rules as catalog.Compare (spec.md §4.5): CHARS is a
// C-string compare, INT/FLOAT are numeric, DATES is a string compare on
// the canonical format.
func compareKeys(typ catalog.ColumnType, a, b []byte) int {
	switch typ {
	case catalog.TypeInt:
		ai := int32(uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16 | uint32(a[3])<<24)
		bi := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	case catalog.TypeFloat:
		af := math.Float32frombits(uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16 | uint32(a[3])<<24)
		bf := math.Float32frombits(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		d := af - bf
		switch {
		case d > 1e-6:
			return 1
		case d < -1e-6:
			return -1
		default:
			return 0
		}
	case catalog.TypeDates:
		return strings.Compare(
			strings.TrimRight(string(a), "\x00"),
			strings.TrimRight(string(b), "\x00"))
	default: // CHARS
		return bytes.Compare(
			bytes.TrimRight(a, "\x00"),
			bytes.TrimRight(b, "\x00"))
	}
}
