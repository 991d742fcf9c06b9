package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/metrics"
	"robotrader/internal/resilience"
)

// Config selects the data source and cache.
type Config struct {
	Provider     string        `mapstructure:"provider" default:"yahoo" validate:"oneof=yahoo alpaca"`
	YahooBaseURL string        `mapstructure:"yahoo_base_url"`
	Timeout      time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	RateLimit    float64       `mapstructure:"rate_limit" default:"2" validate:"gte=0"` // requests per second, 0 disables
	RateBurst    int           `mapstructure:"rate_burst" default:"5" validate:"gte=1"`
	Cache        CacheConfig   `mapstructure:"cache"`
}

// Stack is an assembled provider and the cache backing it.
type Stack struct {
	Provider  Provider
	Resilient *Resilient
	cache     Cache
}

// Close releases the cache backend.
func (s *Stack) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// NewStack builds cache(retry(limit(source))). A redis backend that cannot be
// reached falls back to the in-memory cache.
func NewStack(ctx context.Context, cfg Config, alpacaKey, alpacaSecret string, policy *resilience.Policy, rec *metrics.Recorder, logger zerolog.Logger) (*Stack, error) {
	var source Provider
	switch cfg.Provider {
	case "", "yahoo":
		source = NewYahoo(cfg.YahooBaseURL, cfg.Timeout, logger)
	case "alpaca":
		if alpacaKey == "" || alpacaSecret == "" {
			return nil, apperrors.Wrap(apperrors.ErrMissingCredentials, "alpaca market data")
		}
		source = NewAlpaca(alpacaKey, alpacaSecret, logger)
	default:
		return nil, apperrors.NewValidationError("market_data.provider", cfg.Provider, "must be yahoo or alpaca")
	}

	if cfg.RateLimit > 0 {
		source = NewLimited(source, NewRateLimiter(cfg.RateLimit, cfg.RateBurst))
	}
	resilient := NewResilient(source, policy, rec)
	stack := &Stack{Provider: resilient, Resilient: resilient}

	var cache Cache
	switch cfg.Cache.Backend {
	case "none":
		return stack, nil
	case "redis":
		rc, err := NewRedisCache(ctx, cfg.Cache.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.Redis.Addr).Msg("Redis unavailable, using in-memory cache")
			cache = NewMemoryCache()
		} else {
			cache = rc
		}
	default:
		cache = NewMemoryCache()
	}

	stack.cache = cache
	stack.Provider = NewCached(resilient, cache, cfg.Cache.BarsTTL, cfg.Cache.PriceTTL, rec, logger)
	return stack, nil
}
