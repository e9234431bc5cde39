// Package api is the HTTP client for the five Drive services: auth, search,
// file, process and payment.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrUnexpectedShape is wrapped by every DecodeError.
	ErrUnexpectedShape = errors.New("unexpected response shape")

	// ErrAccountSuspended marks the processing service's ban business error.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrQuotaExceeded marks an upload refused for lack of storage.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrServiceUnavailable is returned while a service's circuit breaker is open.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// StatusError is a non-2xx response that has no more specific sentinel.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Code, e.Body)
}

// Is lets errors.Is match the status sentinels through a StatusError.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrAccountSuspended:
		return strings.Contains(strings.ToLower(e.Body), "suspended")
	case ErrQuotaExceeded:
		return strings.Contains(strings.ToLower(e.Body), "quota")
	}
	return false
}

// DecodeError is a 2xx response whose body did not match the expected shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrUnexpectedShape, e.Err}
}

// IsUnauthorized reports whether err means the session token was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsSuspended reports whether err is the account suspension business error.
func IsSuspended(err error) bool {
	return errors.Is(err, ErrAccountSuspended)
}

// IsRetryable reports whether a caller may reasonably try the same call
// again later: server errors, throttling and an open breaker.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return false
}

// statusError maps a response code to the sentinel or a StatusError.
func statusError(op string, code int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	se := &StatusError{Op: op, Code: code, Body: text}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return se
}

func breakerError(service string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s service: %w", service, ErrServiceUnavailable)
	}
	return err
}
