// Package resilience retries upstream calls that failed for transient
// reasons. Rate-limit and auth statuses are never retried here; the job
// queue owns those backoffs.
package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks an upstream failure as safe to retry.
type TransientError struct {
	Err    error
	Status int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StatusCode returns the upstream HTTP status, or 0 for network errors.
func (e *TransientError) StatusCode() int {
	return e.Status
}

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, status int) *TransientError {
	return &TransientError{Err: err, Status: status}
}

type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether err is worth retrying in-process. An error
// carrying an HTTP status is judged by that status alone.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return IsTransientHTTPStatus(sc.StatusCode())
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether status is a retryable server-side
// failure. 429 is deliberately absent.
func IsTransientHTTPStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
