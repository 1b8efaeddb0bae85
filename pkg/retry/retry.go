// Package retry wraps remote OCR calls with exponential backoff and jitter.
//
// Only conditions the provider reports as recoverable (rate limits, transient
// faults) are retried; fatal errors and any other failure return immediately.
// Backoff doubles each attempt from a base delay, with a uniform jitter drawn
// from [0, base) so that concurrent workers sharing a key do not retry in
// lockstep.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

// Defaults match the rate limits of the Typhoon OCR API (2 req/s, 20 req/min
// per key): five attempts starting at one second, doubling, capped.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// ExhaustedError is returned when every attempt failed with a retryable
// error. It wraps the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err is a retry exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Policy controls how a call is retried. The zero value is usable and applies
// the package defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger

	// Test seams; nil means real sleep and real randomness.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// Do invokes op until it succeeds, fails with a non-retryable error, the
// context is canceled, or the attempt budget runs out.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) (string, error)) (string, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	randFloat := p.randFloat
	if randFloat == nil {
		randFloat = rand.Float64
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !ocr.Retryable(err) {
			return "", err
		}
		lastErr = err

		// Cancellation must surface as such, not as the provider error, so
		// the batch layer aborts instead of walking on with a dead context.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		wait := base << uint(attempt-1)
		if wait > maxDelay {
			wait = maxDelay
		}
		wait += time.Duration(randFloat() * float64(base))

		if p.Logger != nil {
			p.Logger.Warn("retrying OCR call",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", wait.Round(time.Millisecond),
				"error", err)
		}
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
