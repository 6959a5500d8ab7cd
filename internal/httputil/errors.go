package httputil

import (
	"net/http"
)

// HTTPError contains an HTTP status code and wrapped error.
type HTTPError struct {
	// HTTP status codes as registered with IANA.
	Status int
	// Err is the wrapped error.
	Err error
}

// NewError returns an error that contains a HTTP status and error.
func NewError(status int, err error) error {
	return &HTTPError{Status: status, Err: err}
}

// Error implements the `error` interface.
func (e *HTTPError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Err.Error()
}

// Unwrap implements the `error` Unwrap interface.
func (e *HTTPError) Unwrap() error { return e.Err }

// ErrorResponse replies to the request with the error's message as a JSON
// payload of the shape {"error": "..."}.
func (e *HTTPError) ErrorResponse(w http.ResponseWriter, _ *http.Request) {
	RenderJSON(w, e.Status, map[string]string{"error": e.Err.Error()})
}
