// Command xdbsh is a minimal demonstration driver over internal/engine,
// exercising spec.md §8's S1-S6 scenarios. It is not a SQL front-end:
// there is no grammar, no resolver, no optimizer — each scenario below
// builds its engine.Statement-equivalent calls directly, the seam a
// real parser would otherwise fill (spec.md §1 Non-goals: "The SQL
// grammar itself ... we assume a parser produces the AST shapes").
package main

import (
	"fmt"
	"os"

	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/engine"
	"github.com/xdbengine/storage/internal/executor"
	"github.com/xdbengine/storage/internal/filter"
	"github.com/xdbengine/storage/internal/record"
	"github.com/xdbengine/storage/internal/xerrors"
	"github.com/xdbengine/storage/logger"
)

func main() {
	dir, err := os.MkdirTemp("", "xdbsh-*")
	if err != nil {
		fmt.Println("FAIL: mkdtemp:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	log := logger.New(os.Stderr, "warn")
	db, err := engine.Open(dir, log)
	if err != nil {
		fmt.Println("FAIL: engine.Open:", err)
		os.Exit(1)
	}
	defer db.Close()

	scenarios := []struct {
		name string
		run  func(*engine.Database) error
	}{
		{"S1", scenarioS1},
		{"S2", scenarioS2},
		{"S3", scenarioS3},
		{"S4", scenarioS4},
		{"S5", scenarioS5},
		{"S6", scenarioS6},
	}

	failed := 0
	for _, s := range scenarios {
		if err := s.run(db); err != nil {
			fmt.Printf("%s: FAIL: %v\n", s.name, err)
			failed++
			continue
		}
		fmt.Printf("%s: PASS\n", s.name)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// scenarioS1: CREATE TABLE t(id INT, s CHAR(4)); INSERT two rows;
// SELECT * FROM t WHERE id>=2 ⇒ header "id | s", body "2 | cd".
func scenarioS1(db *engine.Database) error {
	const tbl = "s1_t"
	specs := []catalog.FieldSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "s", Type: catalog.TypeChars, Len: 4},
	}
	if _, err := db.CreateTable(tbl, specs); err != nil {
		return err
	}
	if _, err := db.Insert(tbl, nil, []catalog.Value{catalog.NewInt(1), catalog.NewChars("ab")}); err != nil {
		return err
	}
	if _, err := db.Insert(tbl, nil, []catalog.Value{catalog.NewInt(2), catalog.NewChars("cd")}); err != nil {
		return err
	}

	tb, err := db.OpenTable(tbl)
	if err != nil {
		return err
	}
	pred := filter.NewFilter(filter.FieldOperand(tbl, "id"), filter.GE, filter.ValueOperand(catalog.NewInt(2)))
	plan := &executor.Plan{Scans: []executor.ScanSpec{engine.ScanSpecFor(tbl, tb, pred)}}
	res, err := db.Select(plan)
	if err != nil {
		return err
	}
	return expectLines(res.Lines, []string{"id | s", "2 | cd"})
}

// scenarioS2: CREATE UNIQUE INDEX i ON t(id); a duplicate-key INSERT
// fails, leaving no row and no new index entry.
func scenarioS2(db *engine.Database) error {
	const tbl = "s2_t"
	specs := []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt}}
	if _, err := db.CreateTable(tbl, specs); err != nil {
		return err
	}
	if _, err := db.Insert(tbl, nil, []catalog.Value{catalog.NewInt(1)}); err != nil {
		return err
	}
	if err := db.CreateIndex(tbl, "i", "id", true); err != nil {
		return err
	}
	if _, err := db.Insert(tbl, nil, []catalog.Value{catalog.NewInt(1)}); !xerrors.Is(err, xerrors.RecordDuplicateKey) {
		return fmt.Errorf("expected RECORD_DUPLICATE_KEY, got %v", err)
	}

	tb, err := db.OpenTable(tbl)
	if err != nil {
		return err
	}
	plan := &executor.Plan{Scans: []executor.ScanSpec{engine.ScanSpecFor(tbl, tb, nil)}}
	res, err := db.Select(plan)
	if err != nil {
		return err
	}
	return expectLines(res.Lines, []string{"id", "1"})
}

// scenarioS3: DATE accepts '2020-02-29' (leap year), rejects
// '2021-02-29' and '2039-01-01' (outside the storable window).
func scenarioS3(db *engine.Database) error {
	cases := []struct {
		s  string
		ok bool
	}{
		{"2020-02-29", true},
		{"2021-02-29", false},
		{"2039-01-01", false},
	}
	for _, c := range cases {
		_, ok := catalog.ParseDate(c.s)
		if ok != c.ok {
			return fmt.Errorf("ParseDate(%q) = %v, want %v", c.s, ok, c.ok)
		}
	}
	return nil
}

// scenarioS4: a 100-byte TEXT is inserted, UPDATE shrinks it to 20
// bytes, and a table scan must read back exactly those 20 bytes with no
// stale prefix bytes surviving.
func scenarioS4(db *engine.Database) error {
	const tbl = "s4_t"
	specs := []catalog.FieldSpec{{Name: "body", Type: catalog.TypeText}}
	if _, err := db.CreateTable(tbl, specs); err != nil {
		return err
	}
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	if _, err := db.Insert(tbl, nil, []catalog.Value{catalog.NewText(long)}); err != nil {
		return err
	}

	tb, err := db.OpenTable(tbl)
	if err != nil {
		return err
	}
	short := make([]byte, 20)
	for i := range short {
		short[i] = 'z' - byte(i%26)
	}
	if n, err := db.Update(tbl, nil, "body", catalog.NewText(short), nil); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("update affected %d rows, want 1", n)
	}

	trx := db.AutoCommit()
	scanner, err := tb.Scan(trx, nil)
	if err != nil {
		return err
	}
	defer scanner.Close()
	_, row, err := scanner.Next()
	if err != nil {
		return err
	}
	f := tb.Meta().Fields[tb.Meta().FieldIndex("body")]
	var in record.Inline
	copy(in[:], row[f.Offset:f.Offset+f.Len])
	got, err := tb.ReadText(in)
	if err != nil {
		return err
	}
	if len(got) != 20 {
		return fmt.Errorf("TEXT round-trip length = %d, want 20", len(got))
	}
	for i, b := range got {
		if b != short[i] {
			return fmt.Errorf("TEXT round-trip byte %d = %q, want %q (stale prefix?)", i, b, short[i])
		}
	}
	return nil
}

// scenarioS5: SELECT t1.a, t2.b FROM t1, t2 WHERE t1.k=t2.k on two
// three-row tables with two matching keys ⇒ exactly two rows.
func scenarioS5(db *engine.Database) error {
	const t1, t2 = "s5_t1", "s5_t2"
	specs1 := []catalog.FieldSpec{{Name: "k", Type: catalog.TypeInt}, {Name: "a", Type: catalog.TypeInt}}
	specs2 := []catalog.FieldSpec{{Name: "k", Type: catalog.TypeInt}, {Name: "b", Type: catalog.TypeInt}}
	if _, err := db.CreateTable(t1, specs1); err != nil {
		return err
	}
	if _, err := db.CreateTable(t2, specs2); err != nil {
		return err
	}
	for _, row := range [][2]int32{{1, 10}, {2, 20}, {3, 30}} {
		if _, err := db.Insert(t1, nil, []catalog.Value{catalog.NewInt(row[0]), catalog.NewInt(row[1])}); err != nil {
			return err
		}
	}
	for _, row := range [][2]int32{{1, 100}, {2, 200}, {9, 900}} {
		if _, err := db.Insert(t2, nil, []catalog.Value{catalog.NewInt(row[0]), catalog.NewInt(row[1])}); err != nil {
			return err
		}
	}

	tb1, err := db.OpenTable(t1)
	if err != nil {
		return err
	}
	tb2, err := db.OpenTable(t2)
	if err != nil {
		return err
	}
	joinPred := filter.NewCartesianFilter(filter.FieldOperand(t1, "k"), filter.EQ, filter.FieldOperand(t2, "k"))
	plan := &executor.Plan{
		Scans: []executor.ScanSpec{
			engine.ScanSpecFor(t1, tb1, nil),
			engine.ScanSpecFor(t2, tb2, nil),
		},
		Joins: []executor.JoinSpec{{LeftTable: t1, RightTable: t2, Pred: joinPred}},
		Project: []executor.Column{
			{Label: "a", Table: t1, Field: "a"},
			{Label: "b", Table: t2, Field: "b"},
		},
	}
	res, err := db.Select(plan)
	if err != nil {
		return err
	}
	return expectLines(res.Lines, []string{"a | b", "10 | 100", "20 | 200"})
}

// scenarioS6: SELECT COUNT(*), AVG(x) FROM t over {1,2,NULL,4} ⇒
// count(*)=4, avg(x)=2.33 (NULL excluded from AVG).
func scenarioS6(db *engine.Database) error {
	const tbl = "s6_t"
	specs := []catalog.FieldSpec{{Name: "x", Type: catalog.TypeInt, Nullable: true}}
	if _, err := db.CreateTable(tbl, specs); err != nil {
		return err
	}
	for _, v := range []catalog.Value{catalog.NewInt(1), catalog.NewInt(2), catalog.NewNull(catalog.TypeInt), catalog.NewInt(4)} {
		if _, err := db.Insert(tbl, nil, []catalog.Value{v}); err != nil {
			return err
		}
	}

	tb, err := db.OpenTable(tbl)
	if err != nil {
		return err
	}
	plan := &executor.Plan{
		Scans: []executor.ScanSpec{engine.ScanSpecFor(tbl, tb, nil)},
		Agg: []executor.AggSpec{
			{Func: executor.AggCount, CountStar: true, Label: "count(*)"},
			{Func: executor.AggAvg, Column: executor.Column{Table: tbl, Field: "x"}, Label: "avg(x)"},
		},
	}
	res, err := db.Select(plan)
	if err != nil {
		return err
	}
	return expectLines(res.Lines, []string{"count(*) | avg(x)", "4 | 2.33"})
}

func expectLines(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("got %d lines %v, want %d lines %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	return nil
}
