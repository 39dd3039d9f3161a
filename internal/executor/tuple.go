// Package executor implements spec.md §4.6's operator tree: scan,
// nested-loop join, sub-query, aggregation, order-by, and output
// operators, composed over internal/table and internal/filter. Operators
// are plain structs wired by composition (spec.md §9 "prefer composition
// ... avoid deep inheritance"), each exposing the narrow Init/Next/
// Schema/Describe contract spec.md §4.6 calls for, adapted to Go's
// iterator idiom (Next returns one Tuple or xerrors.RecordEOF) rather
// than a batch TupleSet per call.
package executor

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/record"
	"github.com/xdbengine/storage/internal/table"
)

// Tuple is one row flowing through the operator tree. A row-backed
// tuple (scan/join/sub-query output) carries raw per-table row bytes in
// Rows, decoded lazily; a value-backed tuple (aggregation output)
// carries already-computed Values instead.
type Tuple struct {
	Rows   map[string][]byte
	Values []catalog.Value
}

func mergeTuples(a, b Tuple) Tuple {
	rows := make(map[string][]byte, len(a.Rows)+len(b.Rows))
	for k, v := range a.Rows {
		rows[k] = v
	}
	for k, v := range b.Rows {
		rows[k] = v
	}
	return Tuple{Rows: rows}
}

// Column is one column of an operator's output schema: either a
// (table, field) reference into row-backed tuples, or a computed
// (aggregation) slot read positionally from Tuple.Values.
type Column struct {
	Label        string
	Table        string
	Field        string
	Computed     bool
	declaredType catalog.ColumnType // filled in by Build, for aggregation NULL typing
}

// Schema is the ordered column list an operator emits, per spec.md
// §4.6's TupleSchema.
type Schema struct {
	Columns []Column
}

// Tables resolves Column table/field references against the table
// handles registered at Build time, used to decode raw rows (including
// TEXT overflow reads) and for the NULL bitmap width of each table.
type Tables map[string]*table.Table

func (ts Tables) columnValue(c Column, t Tuple, pos int) (catalog.Value, error) {
	if c.Computed {
		if pos < len(t.Values) {
			return t.Values[pos], nil
		}
		return catalog.Value{}, nil
	}
	tb := ts[c.Table]
	meta := tb.Meta()
	idx := meta.FieldIndex(c.Field)
	f := meta.Fields[idx]
	row := t.Rows[c.Table]
	if page.BitSet(row[:meta.NullBitmapBytes], idx) {
		return catalog.Value{Type: f.Type, Null: true}, nil
	}
	if f.Type == catalog.TypeText {
		var in record.Inline
		copy(in[:], row[f.Offset:f.Offset+f.Len])
		b, err := tb.ReadText(in)
		if err != nil {
			return catalog.Value{}, err
		}
		return catalog.NewText(b), nil
	}
	raw := row[f.Offset : f.Offset+f.Len]
	return catalog.DecodeFixed(f.Type, raw), nil
}

func evalFieldRef(ref filter.FieldRef, rows map[string][]byte, tables Tables) (catalog.Value, bool, error) {
	v, err := tables.columnValue(Column{Table: ref.Table, Field: ref.Field}, Tuple{Rows: rows}, 0)
	if err != nil {
		return catalog.Value{}, false, err
	}
	return v, v.Null, nil
}

// metas projects Tables down to the map[string]*catalog.TableMeta shape
// internal/filter's Expr.Bind and ExpressionFilter.Bind expect.
func (ts Tables) metas() map[string]*catalog.TableMeta {
	m := make(map[string]*catalog.TableMeta, len(ts))
	for k, tb := range ts {
		m[k] = tb.Meta()
	}
	return m
}

// nullBytes projects Tables down to each table's NULL-bitmap width, the
// shape Expr.Eval/ExpressionFilter.Matches expect.
func (ts Tables) nullBytes() map[string]int {
	m := make(map[string]int, len(ts))
	for k, tb := range ts {
		m[k] = tb.Meta().NullBitmapBytes
	}
	return m
}

// Operator is the narrow contract every node of the executor's tree
// implements, per spec.md §4.6.
type Operator interface {
	Init() error
	// Next returns the next output Tuple, or an error carrying
	// xerrors.RecordEOF once exhausted.
	Next() (Tuple, error)
	Schema() Schema
	// Describe renders a one-line plan trace, including which index (if
	// any) a scan chose, per SPEC_FULL.md's EXPLAIN-less plan trace.
	Describe() string
}
