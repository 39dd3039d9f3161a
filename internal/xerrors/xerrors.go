// Package xerrors defines the uniform result-code error type every public
// operation in this module returns, following the teacher's convention
// (server/innodb/buffer_pool/errors.go) of one sentinel per failure kind
// plus a wrapper struct that records the operation name and, optionally,
// an underlying cause via github.com/pkg/errors.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the result codes from spec.md §7. SUCCESS has no Code
// value: a nil error models success, per Go convention.
type Code string

const (
	// I/O
	IOErr                    Code = "IOERR"
	BufferPoolClosed         Code = "BUFFERPOOL_CLOSED"
	BufferPoolInvalidPageNum Code = "BUFFERPOOL_INVALID_PAGE_NUM"
	FrameNoMem               Code = "FRAME_NOMEM"

	// Record
	RecordOpened         Code = "RECORD_OPENNED"
	RecordNoMem          Code = "RECORD_NOMEM"
	RecordNotExist       Code = "RECORD_RECORD_NOT_EXIST"
	RecordInvalidRID     Code = "RECORD_INVALIDRID"
	RecordEOF            Code = "RECORD_EOF"
	RecordDuplicateKey   Code = "RECORD_DUPLICATE_KEY"
	RecordInvalidKey     Code = "RECORD_INVALID_KEY"
	RecordClosed         Code = "RECORD_CLOSED"

	// Schema
	SchemaTableExist        Code = "SCHEMA_TABLE_EXIST"
	SchemaTableNotExist     Code = "SCHEMA_TABLE_NOT_EXIST"
	SchemaFieldMissing      Code = "SCHEMA_FIELD_MISSING"
	SchemaFieldNotExist     Code = "SCHEMA_FIELD_NOT_EXIST"
	SchemaFieldTypeMismatch Code = "SCHEMA_FIELD_TYPE_MISMATCH"
	SchemaIndexExist        Code = "SCHEMA_INDEX_EXIST"
	ConstraintNotNull       Code = "CONSTRAINT_NOTNULL"

	// SQL / generic
	SQLSyntax       Code = "SQL_SYNTAX"
	InvalidArgument Code = "INVALID_ARGUMENT"
	GenericError    Code = "GENERIC_ERROR"
)

// Error is the concrete type every public API returns.
type Error struct {
	Code Code
	Op   string
	err  error // optional wrapped cause, via github.com/pkg/errors
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.err)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// New builds an *Error with no wrapped cause.
func New(op string, code Code) error {
	return &Error{Op: op, Code: code}
}

// Wrap builds an *Error around an existing error, attaching a stack via
// github.com/pkg/errors the way the teacher's storage layer (and
// _examples/Revolution1-sidb) wraps I/O failures.
func Wrap(op string, code Code, cause error) error {
	if cause == nil {
		return New(op, code)
	}
	return &Error{Op: op, Code: code, err: errors.Wrap(cause, op)}
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err isn't an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
