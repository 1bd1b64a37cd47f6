package apiclient

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a request was rejected with 401 and the session
// could not be refreshed. The session has been logged out.
var ErrUnauthorized = errors.New("unauthorized")

// RequestError is a non-2xx response.
type RequestError struct {
	StatusCode int
	// Message comes from the JSON "error" or "message" field, the raw body,
	// or the status line, in that order.
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// NetworkError reports a transport failure or timeout. Requests are not retried.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
