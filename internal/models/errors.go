package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the API distinguishes. Repos and
// services wrap these with fmt.Errorf("...: %w", Err...) so handlers can map
// them to HTTP status codes with errors.Is.
var (
	// ErrValidation covers malformed or missing input, bad time formats and
	// transition requests outside the status enum.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden means the caller is authenticated but not a participant
	// or owner of the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced service or booking does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers taken booking slots, duplicate reviews and illegal
	// status transitions.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable means the service cannot be booked for the requested
	// date and time window.
	ErrUnavailable = errors.New("service unavailable for booking")

	// ErrStoreUnavailable means the persistence layer is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError wraps ErrValidation with a field-level message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ConflictError wraps ErrConflict with a description of the conflict.
func ConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
