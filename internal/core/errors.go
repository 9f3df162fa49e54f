package core

import (
	"errors"
	"strings"
)

// Sentinel errors returned by session and service operations. Their text is
// matched by MapError, so keep it stable.
var (
	ErrMappingIncomplete  = errors.New("mapping incomplete: select all required columns")
	ErrUnresolvedEntities = errors.New("unresolved entities")
	ErrNothingToCommit    = errors.New("nothing to commit")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrSessionClosed      = errors.New("session closed")
	ErrSessionNotFound    = errors.New("import session not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrUnknownKind        = errors.New("unknown import kind")
	ErrUnknownField       = errors.New("unknown field")
	ErrColumnOutOfRange   = errors.New("column out of range")
	ErrUnknownEntity      = errors.New("unknown entity")
	ErrNotUnmatched       = errors.New("not an unmatched code")
	ErrDatasetNotFound    = errors.New("dataset not found")

	ErrUnknownExportFormat = errors.New("unknown export format")
)

// UnresolvedError lists the referenced codes that still need a resolution.
type UnresolvedError struct {
	Codes []string
}

func (e *UnresolvedError) Error() string {
	return ErrUnresolvedEntities.Error() + ": " + strings.Join(e.Codes, ", ")
}

func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolvedEntities
}

// CommitError wraps a catalog write failure during commit. The session keeps
// its approved rows so the commit can be retried.
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return "store write failed: " + e.Op + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }
