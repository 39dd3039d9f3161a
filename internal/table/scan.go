package table

import (
	"github.com/xdbengine/storage/internal/bptree"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/record"
	"github.com/xdbengine/storage/internal/txn"
	"github.com/xdbengine/storage/internal/xerrors"
)

// RowScanner is what Scan returns: a cursor over (rid, row) pairs, row
// already visibility- and predicate-filtered.
type RowScanner interface {
	Next() (page.RID, []byte, error)
	Close() error
}

type fileRowScanner struct{ fs *record.FileScanner }

func (s fileRowScanner) Next() (page.RID, []byte, error) { return s.fs.Next() }
func (s fileRowScanner) Close() error                    { return nil }

// indexRowScanner re-checks the full predicate per row, per spec.md
// §4.4 "Index selection for scan: ... the table scans via that index's
// scanner and re-checks the full filter per row."
type indexRowScanner struct {
	bt     *bptree.Scanner
	fh     *record.FileHandle
	filter record.RowFilter
}

func (s *indexRowScanner) Next() (page.RID, []byte, error) {
	for {
		_, rid, err := s.bt.Next()
		if err != nil {
			return page.RID{}, nil, err
		}
		row, err := s.fh.GetRecord(rid)
		if err != nil {
			if xerrors.Is(err, xerrors.RecordNotExist) {
				continue
			}
			return page.RID{}, nil, err
		}
		if s.filter != nil && !s.filter.Matches(row) {
			continue
		}
		return rid, row, nil
	}
}

func (s *indexRowScanner) Close() error { return s.bt.Close() }

func toIndexCompOp(op filter.CompOp) (bptree.CompOp, bool) {
	switch op {
	case filter.EQ:
		return bptree.EQ, true
	case filter.LT:
		return bptree.LT, true
	case filter.LE:
		return bptree.LE, true
	case filter.GT:
		return bptree.GT, true
	case filter.GE:
		return bptree.GE, true
	case filter.NE:
		return bptree.NE, true
	default:
		return 0, false // IsNull/IsNotNull: never index-eligible (spec.md §4.3)
	}
}

// newRowScanner chooses an index-assisted scan when pred is a single
// `field op constant` condition over a non-NULL constant naming an
// indexed column (spec.md §4.4 Index selection for scan), falling back
// to a full file scan otherwise.
func (t *Table) newRowScanner(pred record.RowFilter) (RowScanner, error) {
	if f, ok := pred.(visFilter); ok && f.inner != nil {
		if cf, ok := f.inner.(*filter.Filter); ok {
			if field, op, val, elig := cf.IndexEligible(); elig {
				if ix := t.indexFor(field); ix != nil {
					if iop, ok := toIndexCompOp(op); ok {
						return t.newIndexScanner(ix, iop, val, pred)
					}
				}
			}
		}
	}
	return t.newFileScanner(pred)
}

func (t *Table) newIndexScanner(ix *indexHandle, op bptree.CompOp, val catalog.Value, pred record.RowFilter) (RowScanner, error) {
	bt, err := ix.tree.CreateScanner(op, val.Encode(ix.keyWidth(t)))
	if err != nil {
		return nil, err
	}
	return &indexRowScanner{bt: bt, fh: t.fh, filter: pred}, nil
}

func (ix *indexHandle) keyWidth(t *Table) int {
	idx := t.meta.FieldIndex(ix.meta.FieldNames[0])
	return t.meta.Fields[idx].Len
}

func (t *Table) newFileScanner(pred record.RowFilter) (RowScanner, error) {
	fs, err := record.NewScanner(t.fh, pred, 0)
	if err != nil {
		return nil, err
	}
	return fileRowScanner{fs: fs}, nil
}

// Scan opens a row cursor over every live row visible to trx and
// matching pred (nil pred = every visible row), per spec.md §4.4.
func (t *Table) Scan(trx *txn.Trx, pred *filter.Filter) (RowScanner, error) {
	if err := t.checkOpen("Table.Scan"); err != nil {
		return nil, err
	}
	scanner, err := t.newRowScanner(t.visible(trx, pred))
	if err != nil {
		return nil, t.poisonIfGeneric(err)
	}
	return scanner, nil
}

// IndexNameFor reports which index (if any) Scan would choose for pred,
// for the executor's plan-trace Describe().
func (t *Table) IndexNameFor(pred *filter.Filter) string {
	if pred == nil {
		return ""
	}
	field, op, _, ok := pred.IndexEligible()
	if !ok {
		return ""
	}
	if _, ok := toIndexCompOp(op); !ok {
		return ""
	}
	if ix := t.indexFor(field); ix != nil {
		return ix.meta.Name
	}
	return ""
}
