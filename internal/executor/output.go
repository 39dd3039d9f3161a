package executor

import (
	"fmt"
	"strings"

	"github.com/xdbengine/storage/internal/xerrors"
)

// OutputOperator projects the requested schema (including `*` expansion
// in declaration order) and is the terminal node of the operator tree,
// per spec.md §4.6 Output.
type OutputOperator struct {
	child   Operator
	columns []Column // already expanded; * projects every child column in order
	tables  Tables
}

// NewOutputOperator builds the output projection. Pass the child's full
// Schema().Columns as columns to project everything (SELECT *).
func NewOutputOperator(child Operator, columns []Column, tables Tables) *OutputOperator {
	return &OutputOperator{child: child, columns: columns, tables: tables}
}

func (o *OutputOperator) Init() error { return o.child.Init() }

func (o *OutputOperator) Next() (Tuple, error) {
	return o.child.Next()
}

func (o *OutputOperator) Schema() Schema { return Schema{Columns: o.columns} }

func (o *OutputOperator) Describe() string {
	return fmt.Sprintf("output(cols=%d)[%s]", len(o.columns), o.child.Describe())
}

// Row renders one child tuple as spec.md §4.6's `" | "`-separated
// output row, resolving every projected column through tables.
func (o *OutputOperator) Row(t Tuple) (string, error) {
	parts := make([]string, len(o.columns))
	for i, c := range o.columns {
		v, err := o.tables.columnValue(c, t, i)
		if err != nil {
			return "", err
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, " | "), nil
}

// Header renders the column-label header line preceding the output's
// rows.
func (o *OutputOperator) Header() string {
	labels := make([]string, len(o.columns))
	for i, c := range o.columns {
		labels[i] = c.Label
	}
	return strings.Join(labels, " | ")
}

// Drain runs the operator to completion, rendering each row with Row
// and returning the header followed by every data row, per spec.md
// §4.6's "streams to the session as ... rows with a header line".
func (o *OutputOperator) Drain() ([]string, error) {
	if err := o.Init(); err != nil {
		return nil, err
	}
	lines := []string{o.Header()}
	for {
		t, err := o.child.Next()
		if xerrors.Is(err, xerrors.RecordEOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, err := o.Row(t)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
