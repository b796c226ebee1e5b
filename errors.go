package pax

import (
	"errors"
	"strings"
)

// Error is the pax error domain type.
//
// Errors coming from pax components should be inspectable as ([errors.As])
// an *Error at some point in the error chain. Components should create an
// Error at the system boundary (network client, filesystem call, external
// command) and intermediate layers should prefer fmt.Errorf with "%w" over
// constructing another Error, except to add ErrorKind information.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Op      string
	Message string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is] against an [ErrorKind].
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error { return e.Inner }

// ErrorKind classifies an [Error] per the taxonomy in spec.md §7.
type ErrorKind string

// Error implements error so an [ErrorKind] can itself be compared with
// [errors.Is].
func (k ErrorKind) Error() string { return string(k) }

// Defined error kinds.
const (
	ErrConfig      ErrorKind = "config"      // malformed settings, invalid source URL
	ErrNetwork     ErrorKind = "network"     // DNS, timeout, non-2xx
	ErrResolution  ErrorKind = "resolution"  // not found, no satisfying version, cycle, hold conflict
	ErrExtraction  ErrorKind = "extraction"  // adapter failure, missing host tool
	ErrFilesystem  ErrorKind = "filesystem"  // path owned by another package
	ErrScriptlet   ErrorKind = "scriptlet"   // non-zero exit from adapter script
	ErrLock        ErrorKind = "lock"        // another process holds the program lock
	ErrRollback    ErrorKind = "rollback"    // failure during transaction reversal
	ErrInternal    ErrorKind = "internal"    // non-specific internal error
)
