package executor

import (
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/table"
	"github.com/xdbengine/storage/internal/txn"
)

// ScanSpec names one FROM-clause table and the single-table predicate
// (if any) pushed down onto its scan.
type ScanSpec struct {
	Alias string
	Table *table.Table
	Pred  *filter.Filter
}

// JoinSpec is one explicit join condition applied between the scan
// accumulated so far and the next table, per spec.md §4.6 Join.
type JoinSpec struct {
	RightTable string // must already have a matching ScanSpec.Alias earlier in Plan.Scans
	Pred       *filter.CartesianFilter
	LeftTable  string
}

// SubquerySpec is one correlated sub-query applied after joins, per
// spec.md §4.6 Sub-query.
type SubquerySpec struct {
	Inner *Plan
	LeftExpr, RightExpr *filter.Expr
	Op    SubqueryOp
	Extra *filter.ExpressionFilter
}

// Plan is the executor's input: spec.md §4.6's "two-phase planning"
// composes Scans bottom-up in reverse-declaration order, wraps Joins,
// then Subqueries, then Aggregation or Project.
type Plan struct {
	Scans      []ScanSpec
	Joins      []JoinSpec
	Subqueries []SubquerySpec

	Agg     []AggSpec
	GroupBy []Column

	OrderBy []OrderKey

	Project []Column // output projection; nil/empty means project every scan/join column in order

	Trx *txn.Trx
}

// Build composes a Plan into an Operator tree: scans bottom-up over
// tables in reverse-declaration order, explicit joins, sub-queries,
// then aggregation or projection, per spec.md §4.6's two-phase
// planning. A scan whose predicate folds to a static "ban all"
// (filter.FoldConstant) is short-circuited to a zero-row operator
// without touching storage.
func Build(plan *Plan) (*OutputOperator, Tables, error) {
	tables := make(Tables, len(plan.Scans))
	for _, s := range plan.Scans {
		tables[s.Alias] = s.Table
	}
	metas := tables.metas()

	var root Operator
	for i := len(plan.Scans) - 1; i >= 0; i-- {
		s := plan.Scans[i]
		op, err := buildScan(s, plan.Trx, metas)
		if err != nil {
			return nil, nil, err
		}
		if root == nil {
			root = op
			continue
		}
		root = NewJoinOperator(op, root, nil, s.Alias, "")
	}

	for _, j := range plan.Joins {
		if j.Pred == nil {
			continue
		}
		if err := j.Pred.Bind(j.LeftTable, metas[j.LeftTable], j.RightTable, metas[j.RightTable]); err != nil {
			return nil, nil, err
		}
		root = &joinFilterOperator{child: root, pred: j.Pred, leftTable: j.LeftTable, rightTable: j.RightTable}
	}

	for _, sq := range plan.Subqueries {
		if err := sq.LeftExpr.Bind(metas); err != nil {
			return nil, nil, err
		}
		innerOp, innerTables, err := buildPlanOperator(sq.Inner)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range innerTables {
			tables[k] = v
		}
		innerMetas := tables.metas()
		if err := sq.RightExpr.Bind(innerMetas); err != nil {
			return nil, nil, err
		}
		if sq.Extra != nil {
			if err := sq.Extra.Bind(innerMetas); err != nil {
				return nil, nil, err
			}
		}
		root = NewSubQueryOperator(root, innerOp, sq.LeftExpr, sq.RightExpr, sq.Op, sq.Extra, tables)
	}

	if len(plan.Agg) > 0 || len(plan.GroupBy) > 0 {
		bindColumns(plan.GroupBy, metas)
		for i := range plan.Agg {
			bindColumn(&plan.Agg[i].Column, metas)
		}
		root = NewAggregationOperator(root, plan.Agg, plan.GroupBy, tables)
	}

	if len(plan.OrderBy) > 0 {
		keys := plan.OrderBy
		for i := range keys {
			bindColumn(&keys[i].Column, metas)
		}
		root = NewOrderByOperator(root, keys, tables)
	}

	project := plan.Project
	if len(project) == 0 {
		project = root.Schema().Columns
	} else {
		bindColumns(project, metas)
	}
	return NewOutputOperator(root, project, tables), tables, nil
}

// buildPlanOperator builds a standalone sub-plan (e.g. a sub-query's
// inner side) down to its raw operator tree, without an output wrapper.
func buildPlanOperator(p *Plan) (Operator, Tables, error) {
	out, tables, err := Build(p)
	if err != nil {
		return nil, nil, err
	}
	return out.child, tables, nil
}

func buildScan(s ScanSpec, trx *txn.Trx, metas map[string]*catalog.TableMeta) (Operator, error) {
	if s.Pred != nil {
		if err := s.Pred.BindTable(metas[s.Alias]); err != nil {
			return nil, err
		}
		if tautology, banAll, folded := filter.FoldConstant(s.Pred); folded {
			if banAll {
				return &banAllOperator{schema: scanSchema(s)}, nil
			}
			if tautology {
				s.Pred = nil
			}
		}
	}
	return NewScanOperator(s.Alias, s.Table, trx, s.Pred), nil
}

func scanSchema(s ScanSpec) Schema {
	fields := s.Table.Meta().UserFields()
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Label: f.Name, Table: s.Alias, Field: f.Name}
	}
	return Schema{Columns: cols}
}

func bindColumns(cols []Column, metas map[string]*catalog.TableMeta) {
	for i := range cols {
		bindColumn(&cols[i], metas)
	}
}

func bindColumn(c *Column, metas map[string]*catalog.TableMeta) {
	if c.Computed {
		return
	}
	meta, ok := metas[c.Table]
	if !ok {
		return
	}
	idx := meta.FieldIndex(c.Field)
	if idx < 0 {
		return
	}
	c.declaredType = meta.Fields[idx].Type
	if c.Label == "" {
		c.Label = c.Field
	}
}
