// Package txn implements spec.md §4.7's per-row transaction hook: a
// monotonic transaction id counter, a per-transaction intent log, and
// the visibility rule a scan's filter consults. It is deliberately thin
// — there is no redo/undo log on disk and no snapshot isolation (spec.md
// §1/§5 Non-goals) — just enough bookkeeping that a multi-statement
// session can commit or roll back the inserts/deletes it made, mirroring
// the teacher's manager/transaction_manager.go counter-behind-a-mutex
// shape.
package txn

import (
	"sync"

	"github.com/xdbengine/storage/internal/page"
)

// Committer is the capability a table exposes back to a Trx so it can
// replay committed deletes or undo uncommitted inserts/deletes without
// txn importing the table package (spec.md §9 "model cycles behind
// capability interfaces").
type Committer interface {
	// CommitDelete physically removes rid: index purge, TEXT overflow
	// reset, and slot clear, per spec.md §4.7 "deletions become real
	// slot-clear + index-purge + TEXT-page reset."
	CommitDelete(rid page.RID) error
	// RollbackInsert undoes an uncommitted insert: index purge, TEXT
	// overflow reset, and slot clear.
	RollbackInsert(rid page.RID) error
	// RollbackDelete restores rid's trx column sign, undoing a deferred
	// delete that was never committed.
	RollbackDelete(rid page.RID) error
}

type kind int

const (
	kindInsert kind = iota
	kindDelete
)

type intent struct {
	table Committer
	rid   page.RID
	kind  kind
}

// Trx is one (possibly multi-statement) transaction: a stable id stamped
// into every row it touches, plus the ordered list of rows it inserted
// or deleted so Commit/Rollback can replay them, per spec.md §4.7.
type Trx struct {
	id         int32
	autoCommit bool
	intents    []intent
	closed     bool
}

// ID returns the transaction's stable id, stamped into the trx column of
// every row it writes.
func (t *Trx) ID() int32 { return t.id }

// AutoCommit reports whether this Trx is a single-statement, throwaway
// transaction (spec.md §4.7's "Auto-commit mode collapses all this into
// immediate physical mutation").
func (t *Trx) AutoCommit() bool { return t.autoCommit }

// NotifyInsert records that table inserted rid under this transaction.
// On commit this is a no-op; on rollback the row is physically removed.
func (t *Trx) NotifyInsert(table Committer, rid page.RID) {
	t.intents = append(t.intents, intent{table: table, rid: rid, kind: kindInsert})
}

// NotifyDelete records that table marked rid deleted (sign-flipped,
// not yet physically removed) under this transaction.
func (t *Trx) NotifyDelete(table Committer, rid page.RID) {
	t.intents = append(t.intents, intent{table: table, rid: rid, kind: kindDelete})
}

// Commit replays every deferred delete as a physical removal; inserts
// need no further action at the data level, per spec.md §4.7.
func (t *Trx) Commit() error {
	if t.closed {
		return nil
	}
	for _, in := range t.intents {
		if in.kind != kindDelete {
			continue
		}
		if err := in.table.CommitDelete(in.rid); err != nil {
			return err
		}
	}
	t.intents = nil
	t.closed = true
	return nil
}

// Rollback undoes every intent in reverse order: inserts are physically
// deleted, deletes have their sign bit cleared to restore the pre-image.
func (t *Trx) Rollback() error {
	if t.closed {
		return nil
	}
	for i := len(t.intents) - 1; i >= 0; i-- {
		in := t.intents[i]
		var err error
		if in.kind == kindInsert {
			err = in.table.RollbackInsert(in.rid)
		} else {
			err = in.table.RollbackDelete(in.rid)
		}
		if err != nil {
			return err
		}
	}
	t.intents = nil
	t.closed = true
	return nil
}

// Visible implements spec.md §4.7's visibility check: a row is visible
// to trx T if |trx_col| == T (a row T inserted, including one since
// marked deleted, since a delete flips the sign but keeps the inserter's
// id) or trx_col > 0 and trx_col != T (a live row inserted by a different
// transaction; the column does not record whether that one committed).
func Visible(trxCol int32, reader int32) bool {
	if trxCol == reader || trxCol == -reader {
		return true
	}
	return trxCol > 0 && trxCol != reader
}

// Manager hands out monotonically increasing transaction ids behind a
// mutex, per spec.md §4.7 / the teacher's transaction_manager.go.
type Manager struct {
	mu   sync.Mutex
	next int32
}

// NewManager creates a Manager whose first issued id is 1 (0 is never a
// valid trx id, matching the reserved-zero convention used elsewhere in
// this module for page/RID sentinels).
func NewManager() *Manager {
	return &Manager{next: 1}
}

// Begin starts a new multi-statement transaction.
func (m *Manager) Begin() *Trx {
	return &Trx{id: m.nextID()}
}

// AutoCommit returns a throwaway single-statement transaction; callers
// should Commit it themselves immediately after the one statement it
// covers completes.
func (m *Manager) AutoCommit() *Trx {
	return &Trx{id: m.nextID(), autoCommit: true}
}

func (m *Manager) nextID() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	return id
}
