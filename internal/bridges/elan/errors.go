package elan

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain-specific errors for hub operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthExhausted is returned when every login attempt failed.
	ErrAuthExhausted = errors.New("elan: authentication retries exhausted")

	// ErrUnauthorized matches responses the hub rejected for lack of a session.
	ErrUnauthorized = errors.New("elan: request not authorised")

	// ErrBadStatus matches every non-2xx hub response.
	ErrBadStatus = errors.New("elan: unexpected HTTP status")

	// ErrTimeout is returned when a hub call exceeds its deadline.
	ErrTimeout = errors.New("elan: request timed out")

	// ErrMalformedResponse is returned when a hub body is not the expected JSON.
	ErrMalformedResponse = errors.New("elan: malformed JSON response")

	// ErrMalformedEvent marks a WebSocket frame without a usable device id.
	ErrMalformedEvent = errors.New("elan: malformed event frame")

	// ErrStreamClosed is reported when the event stream ends.
	ErrStreamClosed = errors.New("elan: event stream closed")

	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("elan: invalid client configuration")
)

// StatusError is returned for a hub response outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elan: %s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// Is lets errors.Is match ErrBadStatus, and ErrUnauthorized for 401/403.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBadStatus:
		return true
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}
