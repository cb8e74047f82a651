package domain

import (
	"errors"
	"fmt"
)

// No address to geocode. Terminal, never retried.
var ErrAddressMissing = errors.New("no address")

// The provider returned no usable coordinates or the request failed.
// A later request for the same order retries.
var ErrGeocodeFailed = errors.New("geocode failed")

// The backend rejected a sequence write, usually because local state is stale.
// Callers must re-fetch the route before retrying.
var ErrSequenceConflict = errors.New("sequence conflict")

// Transport-level failure (including timeouts) of a single call.
var ErrNetwork = errors.New("network error")

var ErrNotFound = errors.New("not found")
var ErrDuplicateOrder = errors.New("order already in route")
var ErrInvalidPosition = errors.New("invalid position")

// ErrInvariant means a route failed its dense 1..N postcondition.
var ErrInvariant = errors.New("sequence invariant violated")

// BackendError carries the detail of a failed backend call.
// Err is one of the sentinels above so callers can use errors.Is.
type BackendError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s: %v", e.Op, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
