package marketdata

import (
	"context"
	"time"

	"robotrader/internal/metrics"
	"robotrader/internal/models"
	"robotrader/internal/resilience"
)

// Resilient runs provider calls under a retry and circuit-breaker policy.
type Resilient struct {
	inner   Provider
	policy  *resilience.Policy
	metrics *metrics.Recorder
}

// NewResilient wraps a provider with a policy.
func NewResilient(inner Provider, policy *resilience.Policy, rec *metrics.Recorder) *Resilient {
	return &Resilient{inner: inner, policy: policy, metrics: rec}
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Policy exposes the policy for health checks.
func (r *Resilient) Policy() *resilience.Policy { return r.policy }

func (r *Resilient) DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	start := time.Now()
	bars, err := resilience.DoValue(ctx, r.policy, r.inner.Name()+".daily_bars", func() ([]models.Candle, error) {
		return r.inner.DailyBars(ctx, symbol, days)
	})
	r.metrics.RecordDataFetch(r.inner.Name(), err == nil, time.Since(start))
	return bars, err
}

func (r *Resilient) LastPrice(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	price, err := resilience.DoValue(ctx, r.policy, r.inner.Name()+".last_price", func() (float64, error) {
		return r.inner.LastPrice(ctx, symbol)
	})
	r.metrics.RecordDataFetch(r.inner.Name(), err == nil, time.Since(start))
	return price, err
}
