// ABOUTME: Typed API error carrying the HTTP status, plus local validation sentinels
// ABOUTME: Callers use IsNotFound to tell session-gone (404) apart from fatal failures

package supportapi

import (
	"errors"
	"net/http"
)

// Local validation errors, returned before any request is issued.
var (
	ErrEmptyBody       = errors.New("message body is required")
	ErrMissingSession  = errors.New("session id is required")
	ErrMissingTicketID = errors.New("ticket id is required")
)

// Error is a failed API call. Status is 0 when the request never produced
// an HTTP response (transport failure).
type Error struct {
	Message string
	Status  int
	Detail  any
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
