// Package regime estimates whether a symbol is in a high-volatility regime.
package regime

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"robotrader/internal/analysis/indicators"
	"robotrader/internal/models"
)

// PriceHistory supplies daily bars.
type PriceHistory interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error)
}

// Config controls the detector.
type Config struct {
	ShortPeriod  int     `mapstructure:"short_period" default:"5" validate:"gt=0"`
	LongPeriod   int     `mapstructure:"long_period" default:"20" validate:"gt=0,gtfield=ShortPeriod"`
	Steepness    float64 `mapstructure:"steepness" default:"5" validate:"gt=0"`
	LookbackDays int     `mapstructure:"lookback_days" default:"90" validate:"gt=0"`
}

// DefaultConfig returns the standard detector settings.
func DefaultConfig() Config {
	return Config{ShortPeriod: 5, LongPeriod: 20, Steepness: 5, LookbackDays: 90}
}

// Detector turns daily bars into a high-volatility probability.
type Detector struct {
	cfg     Config
	history PriceHistory
	logger  zerolog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg Config, history PriceHistory, logger zerolog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		history: history,
		logger:  logger.With().Str("component", "regime").Logger(),
	}
}

// HighVolProbability returns the probability that symbol is in a high
// volatility regime. ok is false when no estimate is available.
func (d *Detector) HighVolProbability(ctx context.Context, symbol string) (float64, bool) {
	bars, err := d.history.DailyBars(ctx, symbol, d.cfg.LookbackDays)
	if err != nil {
		d.logger.Debug().Err(err).Str("symbol", symbol).Msg("No regime estimate")
		return 0, false
	}
	p, ok := Probability(bars, d.cfg.ShortPeriod, d.cfg.LongPeriod, d.cfg.Steepness)
	if ok {
		d.logger.Debug().Str("symbol", symbol).Float64("probability", p).Msg("Regime estimated")
	}
	return p, ok
}

// Probability maps the short/long ATR ratio through a logistic centred on a
// ratio of 1. Expanding volatility pushes the result towards 1.
func Probability(candles []models.Candle, shortPeriod, longPeriod int, steepness float64) (float64, bool) {
	short := indicators.LatestATR(candles, shortPeriod)
	long := indicators.LatestATR(candles, longPeriod)
	if short <= 0 || long <= 0 {
		return 0, false
	}
	ratio := short / long
	return 1 / (1 + math.Exp(-steepness*(ratio-1))), true
}
