// Package apperr defines the error classes every domain service returns.
// Handlers never map errors themselves; the echo HTTPErrorHandler in this
// package translates each class to its status code exactly once.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means an id did not resolve to a stored entity.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means the caller's role or scope does not allow
	// the operation. State is unchanged.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyJudged means a second verdict was attempted on an AI
	// opinion that already has doctor feedback attached.
	ErrAlreadyJudged = errors.New("opinion already judged")
)

// ValidationError reports a missing or malformed required field. It is
// fully recoverable by re-entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports an illegal status transition attempt.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// UnavailableError reports that a collaborator (the AI service, the draft
// cache) could not be reached. The operation degrades soft, it does not
// corrupt any record.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as an UnavailableError for the named service.
func Unavailable(service string, err error) error {
	return &UnavailableError{Service: service, Err: err}
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
