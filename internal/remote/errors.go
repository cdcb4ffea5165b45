package remote

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when the platform has no record of the requested
// type/id pair (HTTP 404).
//
// Whether a missing record is fatal is the caller's decision: an optional
// lookup (e.g. probing an unknown reporting type) may recover to an empty
// result, but the client itself always propagates the raw error.
type NotFoundError struct {
	Type string // Entity type that was requested
	ID   string // Record id, empty for search requests
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("entity type %q not found", e.Type)
	}
	return fmt.Sprintf("%s %s not found", e.Type, e.ID)
}

// IsNotFound returns true if the error is a NotFoundError.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransportError is returned on any network or HTTP failure other than a
// clean 404: connection errors, non-2xx statuses, undecodable bodies.
type TransportError struct {
	Type       string // Entity type of the failed request
	StatusCode int    // HTTP status, 0 when the request never completed
	Err        error  // Underlying cause
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s request failed: status %d: %v", e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s request failed: %v", e.Type, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport returns true if the error is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
