package executor

import (
	"fmt"

	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/table"
	"github.com/xdbengine/storage/internal/txn"
	"github.com/xdbengine/storage/internal/xerrors"
)

// ScanOperator reads one table through table.Scan (which itself picks a
// B+Tree index scanner or a full file scan), per spec.md §4.6 Scan.
type ScanOperator struct {
	alias string
	tbl   *table.Table
	trx   *txn.Trx
	pred  *filter.Filter // attribute-only pushed-down predicate, or nil

	scanner   table.RowScanner
	indexUsed string
}

// NewScanOperator builds a scan of tbl (displayed as alias) filtered by
// pred, under trx.
func NewScanOperator(alias string, tbl *table.Table, trx *txn.Trx, pred *filter.Filter) *ScanOperator {
	return &ScanOperator{alias: alias, tbl: tbl, trx: trx, pred: pred, indexUsed: tbl.IndexNameFor(pred)}
}

func (s *ScanOperator) Init() error {
	sc, err := s.tbl.Scan(s.trx, s.pred)
	if err != nil {
		return err
	}
	s.scanner = sc
	return nil
}

func (s *ScanOperator) Next() (Tuple, error) {
	_, row, err := s.scanner.Next()
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{Rows: map[string][]byte{s.alias: row}}, nil
}

func (s *ScanOperator) Schema() Schema {
	fields := s.tbl.Meta().UserFields()
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Label: f.Name, Table: s.alias, Field: f.Name}
	}
	return Schema{Columns: cols}
}

func (s *ScanOperator) Describe() string {
	if s.indexUsed != "" {
		return fmt.Sprintf("scan(%s) via index(%s)", s.alias, s.indexUsed)
	}
	return fmt.Sprintf("scan(%s) full", s.alias)
}

// banAllOperator is the zero-row plan spec.md §4.5's "ban all" fold-time
// short-circuit produces: a scan statically proven to match nothing
// never touches storage.
type banAllOperator struct {
	schema Schema
}

func (b *banAllOperator) Init() error { return nil }
func (b *banAllOperator) Next() (Tuple, error) {
	return Tuple{}, xerrors.New("banAllOperator.Next", xerrors.RecordEOF)
}
func (b *banAllOperator) Schema() Schema { return b.schema }
func (b *banAllOperator) Describe() string {
	return "banall (constant-false predicate, zero rows)"
}
