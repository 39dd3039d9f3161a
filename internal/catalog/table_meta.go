package catalog

import (
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// TableMeta is a table's full persisted metadata: its fields (with the
// synthetic trx column first), its indexes, and the record_size computed
// once at build time, per spec.md §3/§4.4 Create and invariant 6.
type TableMeta struct {
	TableName       string      `json:"table_name"`
	Fields          []FieldMeta `json:"fields"`
	Indexes         []IndexMeta `json:"indexes"`
	RecordSize      int         `json:"record_size"`
	NullBitmapBytes int         `json:"null_bitmap_bytes"`
	TrxOffset       int         `json:"trx_offset"`
}

// FieldSpec is what a caller supplies to BuildTableMeta for one user
// column; Offset is computed, not supplied.
type FieldSpec struct {
	Name     string
	Type     ColumnType
	Len      int // only meaningful for CHARS
	Nullable bool
}

// BuildTableMeta lays out a new table's record format: NULL bitmap, then
// the trx column, then user columns in declaration order, per spec.md §3.
func BuildTableMeta(tableName string, specs []FieldSpec) (*TableMeta, error) {
	if len(specs) == 0 {
		return nil, xerrors.New("BuildTableMeta", xerrors.SchemaFieldMissing)
	}
	fieldCount := len(specs) + 1 // + synthetic trx
	nullBitmapBytes := page.BitmapBytes(page.Align8(fieldCount))

	fields := make([]FieldMeta, 0, fieldCount)
	fields = append(fields, FieldMeta{
		Name: TrxFieldName, Type: TypeInt, Offset: nullBitmapBytes, Len: 4,
		Visible: false, Nullable: false,
	})
	offset := nullBitmapBytes + 4
	for _, s := range specs {
		if s.Name == "" {
			return nil, xerrors.New("BuildTableMeta", xerrors.SchemaFieldMissing)
		}
		if s.Type == TypeChars && s.Len <= 0 {
			return nil, xerrors.New("BuildTableMeta", xerrors.InvalidArgument)
		}
		w := Width(s.Type, s.Len)
		fields = append(fields, FieldMeta{
			Name: s.Name, Type: s.Type, Offset: offset, Len: w,
			Visible: true, Nullable: s.Nullable,
		})
		offset += w
	}

	return &TableMeta{
		TableName:       tableName,
		Fields:          fields,
		RecordSize:      offset,
		NullBitmapBytes: nullBitmapBytes,
		TrxOffset:       nullBitmapBytes,
	}, nil
}

// Field looks up a field by name (including the synthetic trx column).
func (m *TableMeta) Field(name string) (FieldMeta, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// FieldIndex returns the fields[] slot for name, or -1.
func (m *TableMeta) FieldIndex(name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// UserFields returns the table's visible (non-system) columns.
func (m *TableMeta) UserFields() []FieldMeta {
	out := make([]FieldMeta, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Visible {
			out = append(out, f)
		}
	}
	return out
}

// IndexesOn returns every index that names field.
func (m *TableMeta) IndexesOn(field string) []IndexMeta {
	var out []IndexMeta
	for _, ix := range m.Indexes {
		if ix.Covers(field) {
			out = append(out, ix)
		}
	}
	return out
}

// NullBit returns the NULL-bitmap bit index for fields[i] (its position
// in the Fields slice — the trx column occupies bit 0 and is never NULL).
func (m *TableMeta) NullBit(fieldIdx int) int { return fieldIdx }
