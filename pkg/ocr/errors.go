package ocr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMissingCredential is returned when no API key could be resolved from any
// of the configured sources. It aborts the run before any OCR call is made.
var ErrMissingCredential = errors.New(
	"no API key found: provide one explicitly, or set TYPHOON_OCR_API_KEY or OPENAI_API_KEY")

// RateLimitedError indicates the provider rejected the call because the
// request rate or quota was exceeded. The call may succeed after backing off.
type RateLimitedError struct {
	Message    string
	RetryAfter time.Duration // provider hint, zero when not given
}

func (e *RateLimitedError) Error() string {
	if e.Message == "" {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// TransientError indicates a failure that is expected to be temporary, such
// as a network fault or a 5xx response. The call may succeed if retried.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient failure: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transient failure: %s", e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError indicates a failure that retrying cannot fix, such as an invalid
// credential or a malformed request. It aborts the remaining batch for the
// worker that hit it.
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal OCR failure: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("fatal OCR failure: %s", e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Retryable reports whether err is a condition worth retrying with backoff.
func Retryable(err error) bool {
	var rl *RateLimitedError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ClassifyHTTPStatus maps an HTTP response status from a remote OCR provider
// onto the error taxonomy. 429 is rate limited, 5xx is transient, anything
// else is fatal.
func ClassifyHTTPStatus(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{Message: message}
	case status >= 500:
		return &TransientError{Message: fmt.Sprintf("server returned %d: %s", status, message)}
	default:
		return &FatalError{Message: fmt.Sprintf("server returned %d: %s", status, message)}
	}
}
