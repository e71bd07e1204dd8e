package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the service layer.
var (
	// ErrNotFound covers absent rows and organization mismatches alike, so a
	// caller probing another organization's ids cannot distinguish the two.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an action the caller's role does not permit.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports invalid caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RemoteEngineError wraps any failure talking to the remote execution
// engine: timeouts, refused connections, or remote-side validation.
// NotFound marks the "remote object is gone" sub-case, which the sync
// engine handles by falling back to create.
type RemoteEngineError struct {
	Op       string
	Status   int
	NotFound bool
	Err      error
}

func (e *RemoteEngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote engine %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote engine %s failed: status %d", e.Op, e.Status)
}

func (e *RemoteEngineError) Unwrap() error { return e.Err }

// IsRemoteNotFound reports whether err is a RemoteEngineError for a remote
// object that no longer exists.
func IsRemoteNotFound(err error) bool {
	var re *RemoteEngineError
	return errors.As(err, &re) && re.NotFound
}

// IsRemoteEngine reports whether err is any RemoteEngineError.
func IsRemoteEngine(err error) bool {
	var re *RemoteEngineError
	return errors.As(err, &re)
}

// PersistenceError wraps a datastore failure. When it occurs after a
// successful remote mutation it is surfaced but never triggers a remote
// rollback; re-activation reconciles.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
