package pagination

import (
	"errors"
	"fmt"
)

// ErrUsageCapExceeded is returned when the API reports that the account-level
// quota is exhausted. Further calls fail until the quota period renews, so
// callers should stop rather than move on to the next endpoint.
var ErrUsageCapExceeded = errors.New("usage cap exceeded")

// APIError is an error response the collection loop cannot continue past.
type APIError struct {
	Endpoint   string
	StatusCode int
	Title      string
	Detail     string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: API error (status %d)", e.Endpoint, e.StatusCode)
	if e.Title != "" {
		msg += ": " + e.Title
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
