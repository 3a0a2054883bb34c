package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ExhaustedRetriesError is returned when every attempt of a retried
// operation failed. It is terminal for the current ingestion cycle.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("retry: exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is or wraps an ExhaustedRetriesError.
func IsExhausted(err error) bool {
	var ee *ExhaustedRetriesError
	return errors.As(err, &ee)
}

// ExternalServiceError marks a failure of an external collaborator (AI
// provider, persistence backend) as opposed to bad data it returned.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError wraps err as a failure of service during op.
func NewExternalServiceError(service, op string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsRetryable is the default retry predicate: every failure is retried
// except context cancellation. A fresh attempt can return different text,
// so bad data is as retryable as a network error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
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
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
