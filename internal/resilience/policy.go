package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Policy pairs a retry schedule with an optional per-function breaker
// registry. Breakers wrap each attempt, so an open circuit stops retries.
type Policy struct {
	Name     string
	Retry    RetryWithBackoff
	Breakers *CircuitBreakerRegistry
	Logger   zerolog.Logger
}

// DataFetchPolicy is used for market-data calls.
func DataFetchPolicy(attempts int, initial time.Duration, breaker CircuitBreakerConfig, logger zerolog.Logger) *Policy {
	r := DefaultRetryWithBackoff()
	r.MaxAttempts = attempts
	r.InitialDelay = initial
	return newPolicy("data", r, NewCircuitBreakerRegistry(breaker), logger)
}

// BrokerPolicy is used for broker calls, where reconnecting is expensive.
func BrokerPolicy(attempts int, initial time.Duration, breaker CircuitBreakerConfig, logger zerolog.Logger) *Policy {
	r := DefaultRetryWithBackoff()
	r.MaxAttempts = attempts
	r.InitialDelay = initial
	return newPolicy("broker", r, NewCircuitBreakerRegistry(breaker), logger)
}

// NotifyPolicy retries notification sends without a breaker.
func NotifyPolicy(attempts int, initial time.Duration, logger zerolog.Logger) *Policy {
	r := DefaultRetryWithBackoff()
	r.MaxAttempts = attempts
	r.InitialDelay = initial
	r.ShouldRetry = func(err error) bool { return !errors.Is(err, context.Canceled) }
	return newPolicy("notify", r, nil, logger)
}

func newPolicy(name string, r RetryWithBackoff, breakers *CircuitBreakerRegistry, logger zerolog.Logger) *Policy {
	p := &Policy{Name: name, Retry: r, Breakers: breakers, Logger: logger.With().Str("policy", name).Logger()}
	p.Retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.Logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying call")
	}
	return p
}

// Do runs fn under the policy. The function name selects the breaker.
func (p *Policy) Do(ctx context.Context, function string, fn func() error) error {
	if p == nil {
		return fn()
	}
	if p.Breakers == nil {
		return p.Retry.Execute(ctx, fn)
	}
	cb := p.Breakers.Get(function)
	retry := p.Retry
	base := retry.ShouldRetry
	retry.ShouldRetry = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		if base != nil {
			return base(err)
		}
		return p.Retry.retryable(err)
	}
	return retry.Execute(ctx, func() error {
		return cb.Execute(ctx, fn)
	})
}

// DoValue is Do for functions returning a value.
func DoValue[T any](ctx context.Context, p *Policy, function string, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, function, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Stats returns breaker statistics for the policy, if it has breakers.
func (p *Policy) Stats() []CircuitBreakerStats {
	if p == nil || p.Breakers == nil {
		return nil
	}
	return p.Breakers.AllStats()
}
