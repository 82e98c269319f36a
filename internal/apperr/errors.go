// Package apperr defines the error kinds the client distinguishes:
// validation failures caught before any network call, HTTP responses the
// backend rejected, and transport failures that produced no response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed local input. It never reaches the
// backend; callers surface it at the point of input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// HTTPError is a non-2xx response, with the server-provided message when
// the body carried one.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// NotFound reports whether the backend said the resource does not exist.
func (e *HTTPError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Unauthorized reports a missing or rejected bearer credential.
func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NetworkError is a transport failure: the request produced no response.
// It is user-retryable and never auto-retried.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.NotFound()
}

func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Unauthorized()
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
