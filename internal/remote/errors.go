package remote

import (
	"errors"
	"fmt"
)

// ErrNetworkUnavailable marks transport-level failures: the device is
// offline or the server is unreachable. Callers treat it as expected,
// not exceptional, and fall back to the persistent store.
var ErrNetworkUnavailable = errors.New("network unavailable")

// ErrNotFound marks a chat or message the server does not know.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response the server produced on purpose
// (RemoteRejected). Surfaced to callers for user-initiated mutations,
// swallowed and logged for background sync.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote rejected: status %d: %s", e.Code, e.Body)
}

// IsUnavailable reports whether err is a connectivity failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
