package embed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// retryConfig controls exponential backoff for provider calls.
type retryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// AuthError is a permanent provider failure (HTTP 401/403). It is never
// retried so callers can distinguish a bad credential from a flaky provider.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("embedding authentication failed: status %d: %s", e.StatusCode, e.Body)
}

// RateLimitError is a 429-class response. RetryAfter carries the provider's
// hint when present (zero otherwise).
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("embedding rate limited (retry after %s): %s", e.RetryAfter, e.Body)
}

// retryable reports whether an error is worth another attempt.
// Auth failures are permanent; rate limits and server errors are transient.
func retryable(err error) bool {
	var authErr *AuthError
	return !errors.As(err, &authErr)
}

// withRetry runs fn up to cfg.MaxAttempts times with exponential backoff and
// ±10% jitter. A rate-limit error's Retry-After hint is honored before the
// backoff sleep. The last error is returned when all attempts fail.
func withRetry[T any](ctx context.Context, cfg retryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == cfg.MaxAttempts-1 {
			return zero, lastErr
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
			delay += rlErr.RetryAfter
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// backoffWithJitter computes min(base * 2^attempt, max) ± 10%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}
	tenth := delay / 10
	if tenth > 0 {
		delay += time.Duration(rand.Int63n(int64(tenth*2))) - tenth
	}
	return delay
}
