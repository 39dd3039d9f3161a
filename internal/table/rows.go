package table

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/record"
	"github.com/xdbengine/storage/internal/txn"
	"github.com/xdbengine/storage/internal/xerrors"
)

// buildRow lays out one row's bytes — NULL bitmap, trx column, then user
// columns in declaration order — applying spec.md §4.4 Insert's
// validation and coercion rules.
func (t *Table) buildRow(trxID int32, values []catalog.Value) ([]byte, error) {
	fields := t.meta.UserFields()
	if len(values) != len(fields) {
		return nil, xerrors.New("Table.buildRow", xerrors.SchemaFieldMissing)
	}
	row := make([]byte, t.meta.RecordSize)
	page.PutI32(row, t.meta.TrxOffset, trxID)

	for i, f := range fields {
		v := values[i]
		idx := t.meta.FieldIndex(f.Name)
		if v.Null {
			if !f.Nullable {
				return nil, xerrors.New("Table.buildRow", xerrors.ConstraintNotNull)
			}
			page.BitSetTo(row[:t.meta.NullBitmapBytes], idx, true)
			continue
		}
		cv, err := catalog.CoerceTo(f.Type, v)
		if err != nil {
			return nil, err
		}
		if f.Type == catalog.TypeText {
			in, err := record.WriteText(t.bp, t.dataFileID, cv.B)
			if err != nil {
				return nil, err
			}
			copy(row[f.Offset:f.Offset+f.Len], in[:])
			continue
		}
		copy(row[f.Offset:f.Offset+f.Len], cv.Encode(f.Len))
	}
	return row, nil
}

// Insert constructs a row from values (positional, matching the table's
// user-visible field order), writes it, and maintains every index, per
// spec.md §4.4 Insert. On any index failure (including a duplicate
// unique key) the row and any already-installed index entries are
// rolled back.
func (t *Table) Insert(trx *txn.Trx, values []catalog.Value) (page.RID, error) {
	if err := t.checkOpen("Table.Insert"); err != nil {
		return page.RID{}, err
	}
	row, err := t.buildRow(trx.ID(), values)
	if err != nil {
		return page.RID{}, err
	}
	rid, err := t.fh.InsertRecord(row)
	if err != nil {
		return page.RID{}, t.poisonIfGeneric(err)
	}
	if err := t.insertIndexEntries(row, rid); err != nil {
		t.fh.DeleteRecord(rid)
		return page.RID{}, err
	}
	trx.NotifyInsert(t, rid)
	if trx.AutoCommit() {
		if err := trx.Commit(); err != nil {
			return rid, err
		}
	}
	return rid, nil
}

// UpdateAttr mutates one column of every row pred matches, per spec.md
// §4.4 Update: every index entry for the old row is removed, the column
// bytes are mutated in place (TEXT updates rewrite both the inline
// prefix and the overflow body), then every index entry for the new row
// is reinserted — unconditionally, not just for the changed column,
// matching table.cpp's update_record behavior spec.md §9 references.
func (t *Table) UpdateAttr(trx *txn.Trx, attr string, value catalog.Value, pred *filter.Filter) (int, error) {
	if err := t.checkOpen("Table.UpdateAttr"); err != nil {
		return 0, err
	}
	idx := t.meta.FieldIndex(attr)
	if idx < 0 {
		return 0, xerrors.New("Table.UpdateAttr", xerrors.SchemaFieldNotExist)
	}
	f := t.meta.Fields[idx]
	if !value.Null {
		cv, err := catalog.CoerceTo(f.Type, value)
		if err != nil {
			return 0, err
		}
		value = cv
	}

	scanner, err := t.newRowScanner(t.visible(trx, pred))
	if err != nil {
		return 0, t.poisonIfGeneric(err)
	}
	defer scanner.Close()

	count := 0
	for {
		rid, row, err := scanner.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return count, t.poisonIfGeneric(err)
		}
		if err := t.removeIndexEntries(row, rid); err != nil {
			return count, t.poisonIfGeneric(err)
		}
		if err := t.applyUpdate(rid, idx, f, value); err != nil {
			return count, t.poisonIfGeneric(err)
		}
		newRow, err := t.fh.GetRecord(rid)
		if err != nil {
			return count, t.poisonIfGeneric(err)
		}
		if err := t.insertIndexEntries(newRow, rid); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (t *Table) applyUpdate(rid page.RID, fieldIdx int, f catalog.FieldMeta, value catalog.Value) error {
	if f.Type == catalog.TypeText && !value.Null {
		row, err := t.fh.GetRecord(rid)
		if err != nil {
			return err
		}
		var old record.Inline
		copy(old[:], row[f.Offset:f.Offset+f.Len])
		newInline, err := record.UpdateText(t.bp, t.dataFileID, old, value.B)
		if err != nil {
			return err
		}
		return t.fh.UpdateRecordInPlace(rid, func(r []byte) {
			page.BitSetTo(r[:t.meta.NullBitmapBytes], fieldIdx, false)
			copy(r[f.Offset:f.Offset+f.Len], newInline[:])
		})
	}
	return t.fh.UpdateRecordInPlace(rid, func(r []byte) {
		if value.Null {
			page.BitSetTo(r[:t.meta.NullBitmapBytes], fieldIdx, true)
			return
		}
		page.BitSetTo(r[:t.meta.NullBitmapBytes], fieldIdx, false)
		copy(r[f.Offset:f.Offset+f.Len], value.Encode(f.Len))
	})
}

// Delete removes every row pred matches, per spec.md §4.4 Delete. Under
// auto-commit it mutates immediately; under a multi-statement Trx the
// physical delete is deferred to Commit (spec.md §4.7).
func (t *Table) Delete(trx *txn.Trx, pred *filter.Filter) (int, error) {
	if err := t.checkOpen("Table.Delete"); err != nil {
		return 0, err
	}
	scanner, err := t.newRowScanner(t.visible(trx, pred))
	if err != nil {
		return 0, t.poisonIfGeneric(err)
	}
	defer scanner.Close()

	count := 0
	for {
		rid, row, err := scanner.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return count, t.poisonIfGeneric(err)
		}
		if trx.AutoCommit() {
			if err := t.physicalDelete(row, rid); err != nil {
				return count, err
			}
		} else {
			if err := t.fh.UpdateRecordInPlace(rid, func(r []byte) {
				v := page.GetI32(r, t.meta.TrxOffset)
				page.PutI32(r, t.meta.TrxOffset, -v)
			}); err != nil {
				return count, t.poisonIfGeneric(err)
			}
			trx.NotifyDelete(t, rid)
		}
		count++
	}
	if trx.AutoCommit() {
		if err := trx.Commit(); err != nil {
			return count, err
		}
	}
	return count, nil
}
