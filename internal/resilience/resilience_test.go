package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "robotrader/internal/errors"
)

var errFlaky = apperrors.Wrap(apperrors.ErrConnectionFailed, "flaky")

func fastRetry(attempts int) RetryWithBackoff {
	return RetryWithBackoff{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		Jitter:        0.5,
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("prices", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errFlaky })
	}
	assert.Equal(t, CircuitOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ctx, func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("orders", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errFlaky })
	_ = cb.Execute(ctx, func() error { return nil })
	_ = cb.Execute(ctx, func() error { return errFlaky })

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("bars", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errFlaky })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, func() error { return errFlaky })

	assert.Equal(t, CircuitOpen, cb.State())
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := fastRetry(5).Execute(context.Background(), func() error {
		calls++
		return apperrors.ErrOrderRejected
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderRejected)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithBackoffResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := fastRetry(10)
	r.InitialDelay = time.Hour
	r.MaxDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Execute(ctx, func() error { calls++; return errFlaky })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperrors.ErrConnectionFailed)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestPolicy_OpenCircuitStopsRetries(t *testing.T) {
	p := BrokerPolicy(5, time.Millisecond, CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, zerolog.Nop())
	p.Retry.MaxDelay = time.Millisecond

	calls := 0
	err := p.Do(context.Background(), "submit_order", func() error { calls++; return errFlaky })

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	require.Len(t, p.Stats(), 1)
	assert.Equal(t, CircuitOpen, p.Stats()[0].State)
}

func TestNotifyPolicy_HasNoBreaker(t *testing.T) {
	p := NotifyPolicy(2, time.Millisecond, zerolog.Nop())
	calls := 0
	err := p.Do(context.Background(), "send", func() error { calls++; return errors.New("smtp down") })

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Nil(t, p.Stats())
}

func TestHealthMonitor_CriticalFailureIsNotReady(t *testing.T) {
	m := NewHealthMonitor(DefaultHealthMonitorConfig(), zerolog.Nop())
	connected := false
	m.RegisterComponent("broker", true, ConnectionHealthCheck(func() bool { return connected }))
	m.RegisterComponent("store", false, DatabaseHealthCheck(func(ctx context.Context) error { return nil }))

	health := m.RunChecks(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.False(t, m.IsReady())

	rec := httptest.NewRecorder()
	m.ReadinessHTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	connected = true
	m.RunChecks(context.Background())
	assert.True(t, m.IsReady())
}

// Property: the un-jittered backoff never exceeds MaxDelay and never shrinks
// from one attempt to the next.
func TestRetryDelayBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("delay is monotonic and capped", prop.ForAll(
		func(initialMs, maxMs int, factor float64) bool {
			r := RetryWithBackoff{
				InitialDelay:  time.Duration(initialMs) * time.Millisecond,
				MaxDelay:      time.Duration(initialMs+maxMs) * time.Millisecond,
				BackoffFactor: factor,
			}
			prev := time.Duration(0)
			for n := 0; n < 12; n++ {
				d := r.Delay(n)
				if d > r.MaxDelay || d < prev {
					t.Logf("FAILED: n=%d delay=%v prev=%v max=%v", n, d, prev, r.MaxDelay)
					return false
				}
				prev = d
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(0, 60000),
		gen.Float64Range(1.0, 3.0),
	))

	properties.TestingRun(t)
}
