package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridone/paperlens/internal/logger"
)

const (
	// Vendor pacing shared across concurrent runs. Each run additionally
	// observes its own inter-turn delay.
	defaultTurnsPerSecond = 0.5
	turnBurst             = 5
)

// turnLimiter spaces model calls across all concurrent runs so parallel
// analyses do not multiply the request rate.
var turnLimiter = rate.NewLimiter(rate.Limit(defaultTurnsPerSecond), turnBurst)

// SetTurnRate adjusts the shared limiter. perMinute <= 0 leaves the
// default in place.
func SetTurnRate(perMinute int) {
	if perMinute <= 0 {
		return
	}
	turnLimiter.SetLimit(rate.Limit(float64(perMinute) / 60))
}

// RetryPolicy bounds the retry loop around one model call. Backoff before
// attempt n (2-based) is (n-1) * BaseDelay, so the default of 3 attempts at
// 2s waits 2s then 4s.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// WithRetry runs fn up to policy.Attempts times, waiting for the shared
// limiter before every attempt. Errors the classifier reports as transient
// trigger a backoff and retry; any other error returns immediately. After
// the last attempt the last error is returned to the caller, which wraps it
// with the conversation stage.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, log logger.Logger, transient func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * policy.BaseDelay
			log.Warn("Transient error (attempt %d/%d): %v. Retrying in %v", attempt-1, policy.Attempts, lastErr, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		if err := turnLimiter.Wait(ctx); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}
		lastErr = err

		if !transient(err) {
			return zero, err
		}
	}

	return zero, lastErr
}
