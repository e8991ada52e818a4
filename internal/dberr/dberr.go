// Package dberr defines the classifiable error kinds the engine can
// raise, per the taxonomy in spec.md §7 (Schema / Type / Data / I/O /
// Internal). Every layer wraps the sentinel with github.com/pkg/errors
// so a fatal error keeps a walkable stack by the time the query
// manager logs it.
package dberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for client-facing reporting.
type Kind int

const (
	KindSchema Kind = iota
	KindType
	KindData
	KindIO
	KindInternal
)

// DBError carries a Kind plus a stable code so callers can errors.As
// into it without string-matching messages.
type DBError struct {
	Kind Kind
	Code string
	msg  string
}

func (e *DBError) Error() string { return e.msg }

func newErr(k Kind, code, msg string) *DBError {
	return &DBError{Kind: k, Code: code, msg: msg}
}

// Schema errors.
var (
	ErrDatabaseExists   = newErr(KindSchema, "DatabaseExists", "database already exists")
	ErrDatabaseNotFound = newErr(KindSchema, "DatabaseNotFound", "database not found")
	ErrTableExists      = newErr(KindSchema, "TableExists", "table already exists")
	ErrTableNotFound    = newErr(KindSchema, "TableNotFound", "table not found")
	ErrColumnNotFound   = newErr(KindSchema, "ColumnNotFound", "column not found")
	ErrAmbiguousColumn  = newErr(KindSchema, "AmbiguousColumn", "ambiguous column reference")
	ErrIndexExists      = newErr(KindSchema, "IndexExists", "index already exists")
	ErrIndexNotFound    = newErr(KindSchema, "IndexNotFound", "index not found")
)

// Data errors.
var (
	ErrDuplicateKey  = newErr(KindData, "DuplicateKey", "duplicate key on unique insert")
	ErrRecordNotFound = newErr(KindData, "RecordNotFound", "record not found")
)

// IncompatibleType is a Type error carrying the offending kind names.
type IncompatibleType struct {
	Source, Target string
}

func (e *IncompatibleType) Error() string {
	return fmt.Sprintf("incompatible type: cannot use %s as %s", e.Source, e.Target)
}

// NewIncompatibleType builds a classifiable type error.
func NewIncompatibleType(source, target string) error {
	return &IncompatibleType{Source: source, Target: target}
}

// UnixError wraps a syscall-level failure. It always propagates as
// fatal to the enclosing statement.
type UnixError struct {
	Op  string
	Err error
}

func (e *UnixError) Error() string { return fmt.Sprintf("unix error during %s: %v", e.Op, e.Err) }
func (e *UnixError) Unwrap() error { return e.Err }

// NewUnixError wraps a raw OS/syscall error, stamping a stack trace.
func NewUnixError(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&UnixError{Op: op, Err: err})
}

// Internal marks an assertion-like invariant violation.
type Internal struct {
	msg string
}

func (e *Internal) Error() string { return "internal: " + e.msg }

// NewInternal builds an internal-invariant error with a stack trace.
func NewInternal(format string, args ...any) error {
	return errors.WithStack(&Internal{msg: fmt.Sprintf(format, args...)})
}

// KindOf classifies err, defaulting to KindInternal for anything
// unrecognized (a defensive default so unclassified library errors
// still abort the statement rather than being silently swallowed).
func KindOf(err error) Kind {
	var de *DBError
	if errors.As(err, &de) {
		return de.Kind
	}
	var it *IncompatibleType
	if errors.As(err, &it) {
		return KindType
	}
	var ue *UnixError
	if errors.As(err, &ue) {
		return KindIO
	}
	var in *Internal
	if errors.As(err, &in) {
		return KindInternal
	}
	return KindInternal
}

// Wrap adds context to err while preserving classification via
// errors.As/errors.Is on the returned error.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, msg)
}
