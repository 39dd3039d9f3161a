package engine

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/executor"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/table"
	"github.com/xdbengine/storage/internal/txn"
)

// Result is a query's rendered output: a header line plus every data
// row, already " | "-joined per spec.md §4.6 Output. Select fills only
// Lines; Insert, Update and Delete return their affected-row count
// directly, and nothing in this package sets Affected.
type Result struct {
	Lines    []string
	Affected int
}

// Select compiles plan (built against this database's open tables)
// into an operator tree via executor.Build and drains it, per
// spec.md §4.6's two-phase planning. plan.Trx defaults to an
// auto-commit transaction if left nil.
func (db *Database) Select(plan *executor.Plan) (*Result, error) {
	if plan.Trx == nil {
		plan.Trx = db.AutoCommit()
	}
	out, _, err := executor.Build(plan)
	if err != nil {
		return nil, err
	}
	lines, err := out.Drain()
	if err != nil {
		return nil, err
	}
	return &Result{Lines: lines}, nil
}

// Insert inserts one row into table name under trx (nil = auto-commit),
// per spec.md §4.4 Insert.
func (db *Database) Insert(name string, trx *txn.Trx, values []catalog.Value) (int, error) {
	tb, err := db.OpenTable(name)
	if err != nil {
		return 0, err
	}
	if trx == nil {
		trx = db.AutoCommit()
	}
	_, err = tb.Insert(trx, values)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// Update mutates one column of every matching row of table name under
// trx (nil = auto-commit), per spec.md §4.4 Update.
func (db *Database) Update(name string, trx *txn.Trx, attr string, value catalog.Value, pred *filter.Filter) (int, error) {
	tb, err := db.OpenTable(name)
	if err != nil {
		return 0, err
	}
	if trx == nil {
		trx = db.AutoCommit()
	}
	if pred != nil {
		if err := pred.BindTable(tb.Meta()); err != nil {
			return 0, err
		}
	}
	return tb.UpdateAttr(trx, attr, value, pred)
}

// Delete removes every matching row of table name under trx (nil =
// auto-commit), per spec.md §4.4 Delete.
func (db *Database) Delete(name string, trx *txn.Trx, pred *filter.Filter) (int, error) {
	tb, err := db.OpenTable(name)
	if err != nil {
		return 0, err
	}
	if trx == nil {
		trx = db.AutoCommit()
	}
	if pred != nil {
		if err := pred.BindTable(tb.Meta()); err != nil {
			return 0, err
		}
	}
	return tb.Delete(trx, pred)
}

// CreateIndex builds a new index over table name, per spec.md §4.3/§4.4.
func (db *Database) CreateIndex(name, indexName, fieldName string, unique bool) error {
	tb, err := db.OpenTable(name)
	if err != nil {
		return err
	}
	return tb.CreateIndex(indexName, fieldName, unique)
}

// ScanSpecFor is a convenience constructor for a single-table Plan's
// lone ScanSpec, used by cmd/xdbsh's minimal statement dispatch.
func ScanSpecFor(alias string, tb *table.Table, pred *filter.Filter) executor.ScanSpec {
	return executor.ScanSpec{Alias: alias, Table: tb, Pred: pred}
}
