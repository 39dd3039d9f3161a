// Package catalog owns table and index metadata: field layout, JSON
// persistence, and NULL-bitmap sizing, per spec.md §3 "Table metadata" /
// "Index metadata" and §6's on-disk JSON shape. Grounded in the teacher's
// server/innodb/metadata package (FieldMeta/TableMeta/builder.go) for
// naming conventions, using github.com/goccy/go-json for marshaling the
// way _examples/jpl-au-folio/header.go serializes its own on-disk header.
package catalog

import "github.com/xdbengine/storage/internal/record"

// ColumnType is one of spec.md §3's five column types.
type ColumnType string

const (
	TypeInt   ColumnType = "INT"
	TypeFloat ColumnType = "FLOAT"
	TypeChars ColumnType = "CHARS"
	TypeDates ColumnType = "DATES"
	TypeText  ColumnType = "TEXTS"
)

// DatesWidth is the fixed on-disk width of a DATES column: a
// "YYYY-MM-DD" string plus padding, per spec.md §3.
const DatesWidth = 12

// TextInlineWidth is the fixed on-disk width of a TEXTS column's inline
// representation (overflow page number + prefix), per spec.md §3.
const TextInlineWidth = record.TextInlineSize

// Width returns the fixed on-disk byte width for a column of type t with
// declared length len (only meaningful for CHARS).
func Width(t ColumnType, length int) int {
	switch t {
	case TypeInt, TypeFloat:
		return 4
	case TypeDates:
		return DatesWidth
	case TypeText:
		return TextInlineWidth
	case TypeChars:
		return length
	default:
		return 0
	}
}

// FieldMeta describes one column (or the synthetic leading trx column).
type FieldMeta struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Offset   int        `json:"offset"`
	Len      int        `json:"len"`
	Visible  bool       `json:"visible"`
	Nullable bool       `json:"nullable"`
}

// IsSystem reports whether this is the leading synthetic trx column.
func (f FieldMeta) IsSystem() bool { return !f.Visible && f.Name == TrxFieldName }

// TrxFieldName is the name of the synthetic per-row transaction column
// spec.md §3/§4.7 prepends to every table.
const TrxFieldName = "__trx__"
