package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"robotrader/internal/metrics"
	"robotrader/internal/models"
)

// CacheConfig sets the cache backend and TTLs.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend" default:"memory" validate:"oneof=memory redis none"`
	BarsTTL  time.Duration `mapstructure:"bars_ttl" default:"1h" validate:"gt=0"`
	PriceTTL time.Duration `mapstructure:"price_ttl" default:"1m" validate:"gt=0"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

// Cached serves repeated requests from a Cache.
type Cached struct {
	inner    Provider
	cache    Cache
	barsTTL  time.Duration
	priceTTL time.Duration
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewCached wraps a provider with a cache.
func NewCached(inner Provider, cache Cache, barsTTL, priceTTL time.Duration, rec *metrics.Recorder, logger zerolog.Logger) *Cached {
	return &Cached{
		inner:    inner,
		cache:    cache,
		barsTTL:  barsTTL,
		priceTTL: priceTTL,
		metrics:  rec,
		logger:   logger.With().Str("component", "marketdata_cache").Logger(),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	key := cacheKey(c.inner.Name(), "bars", symbol, days)
	var bars []models.Candle
	if c.lookup(ctx, key, &bars) {
		return bars, nil
	}
	bars, err := c.inner.DailyBars(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, bars, c.barsTTL)
	return bars, nil
}

func (c *Cached) LastPrice(ctx context.Context, symbol string) (float64, error) {
	key := cacheKey(c.inner.Name(), "price", symbol)
	var price float64
	if c.lookup(ctx, key, &price) {
		return price, nil
	}
	price, err := c.inner.LastPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	c.store(ctx, key, price, c.priceTTL)
	return price, nil
}

func (c *Cached) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := c.cache.Get(ctx, key, dest)
	if err == nil {
		c.metrics.RecordCache(true)
		return true
	}
	c.metrics.RecordCache(false)
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	return false
}

func (c *Cached) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := c.cache.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
