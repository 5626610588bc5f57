package httpx

import (
	"fmt"

	"github.com/pkg/errors"
)

// APIError is a non-retryable client error returned by the brokerage.
// It signals a malformed request, not transience - retrying would risk
// duplicate side effects for no benefit.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("brokerage api: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("brokerage api: %d: %s", e.StatusCode, e.Message)
}

// TransientError is a retryable failure: rate limit, server error, or a
// network-level error. The transport retries these with bounded backoff and
// only surfaces the last one once retries are exhausted.
type TransientError struct {
	StatusCode int // 0 for network-level failures
	Message    string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient http error: %v", e.Err)
	}
	return fmt.Sprintf("transient http error: %d: %s", e.StatusCode, e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a retryable transport failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// AsAPIError extracts a non-retryable brokerage error, if any.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
