package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services matches exactly one of
// these through errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrImmutable         = errors.New("entity is immutable")
	ErrDependency        = errors.New("dependency failure")
	ErrConcurrency       = errors.New("concurrency conflict")
	ErrConflict          = errors.New("conflict")
)

// ErrNoBillableEntries is returned when every candidate entry was filtered out
// during conversion.
var ErrNoBillableEntries = &Error{Kind: ErrValidation, Field: "entry_ids", Message: "no billable entries"}

// Error carries the kind of failure plus enough context for a caller to
// report it.
type Error struct {
	Kind    error
	Op      string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports a missing entity.
func NotFound(entity string, id int64) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

// Validation reports a rejected input field.
func Validation(field, message string) error {
	return &Error{Kind: ErrValidation, Field: field, Message: message}
}

// InvalidTransition reports a status change outside the transition table.
func InvalidTransition(from, to InvoiceStatus) error {
	return &Error{Kind: ErrInvalidTransition, Message: fmt.Sprintf("cannot move invoice from %s to %s", from, to)}
}

// Immutable reports a write against a locked entity.
func Immutable(entity, reason string) error {
	return &Error{Kind: ErrImmutable, Message: fmt.Sprintf("%s is immutable: %s", entity, reason)}
}

// Conflict reports a request that contradicts stored state.
func Conflict(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}

// Concurrency reports a lost optimistic update.
func Concurrency(op string, err error) error {
	return &Error{Kind: ErrConcurrency, Op: op, Message: "concurrent modification", Err: err}
}

// Dependency wraps a failure in an external collaborator.
func Dependency(op string, err error) error {
	return &Error{Kind: ErrDependency, Op: op, Message: "dependency failed", Err: err}
}

// KindOf returns the kind sentinel err matches, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrInvalidTransition, ErrImmutable, ErrDependency, ErrConcurrency, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
