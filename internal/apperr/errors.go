// Package apperr defines the error taxonomy shared by the activation core.
// Callers distinguish classes with the Is* helpers rather than matching
// message strings.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input (blank statement,
// confidence out of range, blank override reason). Always recoverable;
// Field carries the offending input field for UI display.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NewValidation creates a field-level validation error.
func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// PreconditionError reports an operation attempted in the wrong state,
// e.g. a content save with no active hypothesis bound. Surfaced as a
// blocking state to the caller, never a crash.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

// NewPrecondition creates a precondition error.
func NewPrecondition(format string, args ...any) *PreconditionError {
	return &PreconditionError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFound creates a not-found error for the given entity and id.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a payment event re-delivered with a materially
// different payload than the one already correlated. The original
// correlation is left untouched; the conflicting payload is parked for
// operator review.
type ConflictError struct {
	EventID string
	Msg     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("event %s: %s", e.EventID, e.Msg)
}

// NewConflict creates a conflict error for the given event id.
func NewConflict(eventID, format string, args ...any) *ConflictError {
	return &ConflictError{EventID: eventID, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPrecondition reports whether any error in the chain is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsNotFound reports whether any error in the chain is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsConflict reports whether any error in the chain is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
