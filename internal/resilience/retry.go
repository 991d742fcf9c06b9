package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	apperrors "robotrader/internal/errors"
)

// RetryWithBackoff executes a function with exponential backoff and jitter.
type RetryWithBackoff struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of each delay that is randomized, in [0, 1].
	Jitter float64
	// ShouldRetry decides whether an error is worth another attempt. Nil
	// means apperrors.IsRetryable.
	ShouldRetry func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryWithBackoff returns default retry configuration.
func DefaultRetryWithBackoff() RetryWithBackoff {
	return RetryWithBackoff{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.25,
	}
}

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func jitterFactor() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return jitterRng.Float64()
}

// Delay returns the sleep before attempt n+1 (n starts at 0), without jitter.
func (r RetryWithBackoff) Delay(n int) time.Duration {
	delay := float64(r.InitialDelay)
	factor := r.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	for i := 0; i < n; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	return time.Duration(delay)
}

func (r RetryWithBackoff) jittered(d time.Duration) time.Duration {
	if r.Jitter <= 0 {
		return d
	}
	j := r.Jitter
	if j > 1 {
		j = 1
	}
	// Spread within [d*(1-j), d].
	return time.Duration(float64(d) * (1 - j*jitterFactor()))
}

func (r RetryWithBackoff) retryable(err error) bool {
	if r.ShouldRetry != nil {
		return r.ShouldRetry(err)
	}
	return apperrors.IsRetryable(err)
}

// Execute runs the function with retry and backoff.
func (r RetryWithBackoff) Execute(ctx context.Context, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 || !r.retryable(lastErr) {
			return lastErr
		}

		sleep := r.jittered(r.Delay(attempt))
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, sleep, lastErr)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// RetryWithBackoffResult is Execute for functions returning a value.
func RetryWithBackoffResult[T any](ctx context.Context, r RetryWithBackoff, fn func() (T, error)) (T, error) {
	var out T
	err := r.Execute(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
