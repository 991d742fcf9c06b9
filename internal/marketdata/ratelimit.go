package marketdata

import (
	"context"
	"sync"
	"time"

	"robotrader/internal/models"
)

// RateLimiter is a token bucket shared by every call to one data source.
type RateLimiter struct {
	rate       float64 // tokens per second
	burst      int     // max tokens
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex

	now  func() time.Time
	poll time.Duration
}

// NewRateLimiter creates a limiter allowing rate requests per second with
// bursts of up to burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
		now:        time.Now,
		poll:       10 * time.Millisecond,
	}
}

// Allow takes a token if one is available.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.rate
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

// Limited throttles calls to a provider.
type Limited struct {
	inner   Provider
	limiter *RateLimiter
}

// NewLimited wraps inner with limiter.
func NewLimited(inner Provider, limiter *RateLimiter) *Limited {
	return &Limited{inner: inner, limiter: limiter}
}

func (l *Limited) Name() string { return l.inner.Name() }

func (l *Limited) DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.DailyBars(ctx, symbol, days)
}

func (l *Limited) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return l.inner.LastPrice(ctx, symbol)
}
