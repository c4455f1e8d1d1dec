package syncstore

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("sync store is closed")

// TransportError reports a failed gateway call: a network failure or a
// non-success response from the collection façade. It wraps the cause and
// carries enough context for the caller to decide between retrying and
// surfacing the failure.
type TransportError struct {
	Op       string // "fetch", "create", "update", "delete"
	Resource string // resource name, e.g. "shipments"
	Status   int    // HTTP status, 0 for network-level failures
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Resource, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
