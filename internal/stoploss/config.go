package stoploss

import "time"

// Config holds stop-loss parameters. Percentages and multipliers are
// positive; HighVolTightening is in (0, 1) so it only ever tightens.
type Config struct {
	Enabled               bool          `mapstructure:"enabled" default:"true"`
	TrailingPercent       float64       `mapstructure:"trailing_percent" default:"5.0" validate:"gt=0,lt=100"`
	ATRMultiplier         float64       `mapstructure:"atr_multiplier" default:"2.0" validate:"gt=0"`
	ATRPeriod             int           `mapstructure:"atr_period" default:"14" validate:"gt=0"`
	ATRLookbackDays       int           `mapstructure:"atr_lookback_days" default:"30" validate:"gt=0"`
	ATRRefreshInterval    time.Duration `mapstructure:"atr_refresh_interval" default:"1h" validate:"gt=0"`
	RegimeAware           bool          `mapstructure:"regime_aware" default:"true"`
	HighVolThreshold      float64       `mapstructure:"high_vol_threshold" default:"0.5" validate:"gt=0,lt=1"`
	HighVolTightening     float64       `mapstructure:"high_vol_tightening" default:"0.6" validate:"gt=0,lt=1"`
	StopLossThreshold     float64       `mapstructure:"stop_loss_threshold" default:"-5.0" validate:"lt=0"`
	IntradayCheckInterval int           `mapstructure:"intraday_check_interval" default:"15" validate:"gt=0"`
	MinHoldTime           int           `mapstructure:"min_hold_time" default:"30" validate:"gte=0"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		TrailingPercent:       5.0,
		ATRMultiplier:         2.0,
		ATRPeriod:             14,
		ATRLookbackDays:       30,
		ATRRefreshInterval:    time.Hour,
		RegimeAware:           true,
		HighVolThreshold:      0.5,
		HighVolTightening:     0.6,
		StopLossThreshold:     -5.0,
		IntradayCheckInterval: 15,
		MinHoldTime:           30,
	}
}

// MinHold returns MinHoldTime as a duration.
func (c Config) MinHold() time.Duration {
	return time.Duration(c.MinHoldTime) * time.Minute
}

// CheckInterval returns IntradayCheckInterval as a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.IntradayCheckInterval) * time.Minute
}
