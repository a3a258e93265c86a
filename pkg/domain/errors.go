package domain

import (
	"errors"
	"fmt"
)

// ConflictError reports a delete blocked by a referential-integrity constraint.
// ReferencingTable names the dependent table so the failure can be surfaced to
// the user verbatim. The row being deleted is expected to remain intact.
type ConflictError struct {
	ReferencingTable string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("foreign key constraint in table %s", e.ReferencingTable)
}

// AsConflict unwraps err into a ConflictError when the chain contains one.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// StatusError carries an HTTP-shaped status code alongside the failure message
// so transport adapters can reproduce the wire contract.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return e.Message
}

// NewStatusError builds a StatusError with a formatted message.
func NewStatusError(code int, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound reports a lookup against a missing durable record.
var ErrNotFound = errors.New("record not found")

// ErrEmptyKey rejects a mutation whose row carries no identifying key. It is
// raised client-side before any network call.
var ErrEmptyKey = errors.New("primary key id cannot be empty")
