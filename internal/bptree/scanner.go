package bptree

import (
	"github.com/xdbengine/storage/internal/page"
	"github.com/xdbengine/storage/internal/xerrors"
)

// Scanner walks a Tree's leaf chain left to right, yielding (key, rid)
// pairs that satisfy one CompOp against a bound key, per spec.md §4.3.
// EQ/LT/LE/GT/GE/NE are the only operators the index layer ever builds a
// scanner for; IS and IS NOT NULL never reach here (spec.md §4.5 routes
// those through a row filter instead, since NULL has no ordered position
// in the tree).
type Scanner struct {
	t       *Tree
	op      CompOp
	bound   []byte
	leaf    page.Num
	pos     int
	entries []leafEntry
	done    bool
}

// CreateScanner opens a range scan for op against bound.
func (t *Tree) CreateScanner(op CompOp, bound []byte) (*Scanner, error) {
	s := &Scanner{t: t, op: op, bound: bound}
	var startLeaf page.Num
	var err error
	switch op {
	case LT, LE, NE:
		startLeaf, err = t.firstLeaf()
	default: // EQ, GT, GE: descend straight to the leaf that would hold bound
		_, startLeaf, err = t.descendToLeaf(bound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLeaf(startLeaf); err != nil {
		return nil, err
	}
	s.seekStart()
	return s, nil
}

func (s *Scanner) loadLeaf(num page.Num) error {
	h, ln, err := s.t.readNodeLeaf(num)
	if err != nil {
		return err
	}
	s.t.bp.UnpinPage(h)
	s.leaf = num
	s.entries = ln.entries
	s.pos = 0
	return nil
}

// seekStart advances pos to the first entry that could possibly satisfy
// the predicate, for GT/GE/EQ where the descent may have landed before
// the first qualifying key in this leaf.
func (s *Scanner) seekStart() {
	switch s.op {
	case EQ, GE:
		for s.pos < len(s.entries) && compareKeys(s.t.keyType, s.entries[s.pos].key, s.bound) < 0 {
			s.pos++
		}
	case GT:
		for s.pos < len(s.entries) && compareKeys(s.t.keyType, s.entries[s.pos].key, s.bound) <= 0 {
			s.pos++
		}
	}
}

func (s *Scanner) satisfies(key []byte) bool {
	c := compareKeys(s.t.keyType, key, s.bound)
	switch s.op {
	case EQ:
		return c == 0
	case LT:
		return c < 0
	case LE:
		return c <= 0
	case GT:
		return c > 0
	case GE:
		return c >= 0
	case NE:
		return c != 0
	default:
		return false
	}
}

// Next returns the next qualifying (key, rid), or xerrors.RecordEOF once
// the scan is exhausted or — for LT/LE, where ascending order makes the
// predicate monotonic — once a non-qualifying key is seen.
func (s *Scanner) Next() ([]byte, page.RID, error) {
	for {
		if s.done {
			return nil, page.RID{}, xerrors.New("Scanner.Next", xerrors.RecordEOF)
		}
		if s.pos >= len(s.entries) {
			next, err := s.advanceLeaf()
			if err != nil {
				return nil, page.RID{}, err
			}
			if !next {
				s.done = true
				continue
			}
			continue
		}
		e := s.entries[s.pos]
		s.pos++
		if s.op == EQ && compareKeys(s.t.keyType, e.key, s.bound) != 0 {
			s.done = true
			return nil, page.RID{}, xerrors.New("Scanner.Next", xerrors.RecordEOF)
		}
		if (s.op == LT || s.op == LE) && !s.satisfies(e.key) {
			s.done = true
			return nil, page.RID{}, xerrors.New("Scanner.Next", xerrors.RecordEOF)
		}
		if !s.satisfies(e.key) {
			continue
		}
		return e.key, e.rid, nil
	}
}

// advanceLeaf loads the next leaf in the chain, returning false once the
// chain is exhausted.
func (s *Scanner) advanceLeaf() (bool, error) {
	h, ln, err := s.t.readNodeLeaf(s.leaf)
	if err != nil {
		return false, err
	}
	next := ln.next
	s.t.bp.UnpinPage(h)
	if next == page.Invalid {
		return false, nil
	}
	if err := s.loadLeaf(next); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op: Scanner only ever holds unpinned page references
// between calls.
func (s *Scanner) Close() error { return nil }
