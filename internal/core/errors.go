package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store point lookups when no node exists for a
// prefix. The query endpoints translate it into empty results, never into
// an error response.
var ErrNotFound = errors.New("prefix not found")

// ValidationError marks malformed caller input. It is surfaced directly and
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError marks an operation rejected because a conflicting one is
// already in flight, e.g. overlapping rebuilds.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
