// Package engine wires the catalog, table, and executor layers into a
// Database façade, per SPEC_FULL.md §4.4 "Database façade": a directory
// plus a name -> *table.Table map, with CreateTable/DropTable/OpenTable/
// ListTables rounding out the DDL surface spec.md assumes but never
// names as an operation. Grounded in the teacher's server/innodb schema
// manager, which owns the same directory-of-table-files layout.
package engine

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xdbengine/storage/internal/bufferpool"
	"github.com/xdbengine/storage/internal/catalog"
	"github.com/xdbengine/storage/internal/table"
	"github.com/xdbengine/storage/internal/txn"
	"github.com/xdbengine/storage/internal/xerrors"
	"github.com/xdbengine/storage/logger"
)

// DefaultFrames is the buffer pool size a Database opens with when the
// caller doesn't need a specific cache budget, matching the teacher's
// default pool sizing for its embedded demos.
const DefaultFrames = 256

const tableExt = ".table"

// Database owns one directory of table/data/index files and the
// buffer pool backing all of them, plus the transaction manager every
// session's statements run under.
type Database struct {
	mu     sync.Mutex
	dir    string
	bp     *bufferpool.BufferPool
	tables map[string]*table.Table
	trx    *txn.Manager
	log    *logrus.Logger
}

// Open opens (creating if necessary) a Database rooted at dir, loading
// every `<name>.table` file already present, per spec.md §3 "Tables:
// ... registered in the database's name→Table map".
func Open(dir string, log *logrus.Logger) (*Database, error) {
	if log == nil {
		log = logger.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap("engine.Open", xerrors.IOErr, err)
	}
	db := &Database{
		dir:    dir,
		bp:     bufferpool.New(DefaultFrames, log),
		tables: make(map[string]*table.Table),
		trx:    txn.NewManager(),
		log:    log,
	}
	names, err := db.scanTableFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		tb, err := table.Open(db.bp, db.dir, name, log)
		if err != nil {
			return nil, err
		}
		db.tables[name] = tb
	}
	db.log.Debugf("engine: opened database at %s with %d tables", dir, len(db.tables))
	return db, nil
}

func (db *Database) scanTableFiles() ([]string, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return nil, xerrors.Wrap("engine.scanTableFiles", xerrors.IOErr, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tableExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), tableExt))
	}
	sort.Strings(names)
	return names, nil
}

// CreateTable creates a new table named name with the given column
// specs, per spec.md §4.4 Create, and registers it in the name->Table
// map.
func (db *Database) CreateTable(name string, specs []catalog.FieldSpec) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[name]; ok {
		return nil, xerrors.New("Database.CreateTable", xerrors.SchemaTableExist)
	}
	tb, err := table.Create(db.bp, db.dir, name, specs, db.log)
	if err != nil {
		return nil, err
	}
	db.tables[name] = tb
	return tb, nil
}

// DropTable closes and removes table name, per spec.md §3 "destroyed
// on DROP TABLE".
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tb, ok := db.tables[name]
	if !ok {
		return xerrors.New("Database.DropTable", xerrors.SchemaTableNotExist)
	}
	if err := tb.Drop(); err != nil {
		return err
	}
	delete(db.tables, name)
	return nil
}

// OpenTable returns the already-registered handle for name.
func (db *Database) OpenTable(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tb, ok := db.tables[name]
	if !ok {
		return nil, xerrors.New("Database.OpenTable", xerrors.SchemaTableNotExist)
	}
	return tb, nil
}

// ListTables returns every registered table name in sorted order.
func (db *Database) ListTables() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Begin starts a new multi-statement transaction, per spec.md §4.7.
func (db *Database) Begin() *txn.Trx { return db.trx.Begin() }

// AutoCommit returns a throwaway single-statement transaction.
func (db *Database) AutoCommit() *txn.Trx { return db.trx.AutoCommit() }

// Close flushes and closes every open table and its buffer-pool files.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, tb := range db.tables {
		if err := tb.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Dir returns the database's root directory, mainly for tests.
func (db *Database) Dir() string { return db.dir }
