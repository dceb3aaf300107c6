package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks any failed lookup. Callers degrade to a fallback.
	ErrFetch = errors.New("directory: fetch failed")
	// ErrAuthExpired marks a 401 from the backend. It is terminal for the
	// request; the caller must not retry it in a loop.
	ErrAuthExpired = errors.New("directory: auth expired")
	// ErrNotFound is returned when the looked-up row does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrResponseTooLarge is returned for bodies over the client's limit.
	ErrResponseTooLarge = errors.New("directory: response too large")
)

// StatusError is a backend reply with HTTP status >= 400.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("directory: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("directory: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap exposes ErrFetch, plus ErrAuthExpired for 401.
func (e *StatusError) Unwrap() []error {
	if e.StatusCode == 401 {
		return []error{ErrFetch, ErrAuthExpired}
	}
	return []error{ErrFetch}
}

// ErrMissingBaseURL is returned by NewHTTPClient without a base URL.
var ErrMissingBaseURL = errors.New("directory: base url is required")
