// Package stoploss tracks held positions and decides when price action
// requires an exit, independent of the signal that opened the position.
package stoploss

import (
	"math"
	"time"

	"robotrader/internal/models"
)

// State is the lifecycle stage of a tracked position.
type State string

const (
	StateTracking  State = "TRACKING"
	StateEligible  State = "ELIGIBLE"
	StateTriggered State = "TRIGGERED"
)

// Tracker follows one held symbol. HighPrice never decreases.
type Tracker struct {
	Symbol       string            `json:"symbol"`
	AssetClass   models.AssetClass `json:"asset_class"`
	EntryPrice   float64           `json:"entry_price"`
	EntryTime    time.Time         `json:"entry_time"`
	HighPrice    float64           `json:"high_price"`
	Quantity     float64           `json:"quantity"`
	ATR          float64           `json:"atr_value"`
	ATRUpdatedAt time.Time         `json:"atr_updated_at"`
	CurrentPrice float64           `json:"current_price"`
	LastCheck    time.Time         `json:"last_check"`
}

// NewTracker starts tracking a position first seen at price.
func NewTracker(symbol string, class models.AssetClass, entryPrice, price, quantity, atr float64, now time.Time) *Tracker {
	return &Tracker{
		Symbol:       symbol,
		AssetClass:   class,
		EntryPrice:   entryPrice,
		EntryTime:    now,
		HighPrice:    math.Max(entryPrice, price),
		Quantity:     quantity,
		ATR:          atr,
		ATRUpdatedAt: now,
		CurrentPrice: price,
		LastCheck:    now,
	}
}

// Observe records a price. Non-positive prices are ignored.
func (t *Tracker) Observe(price float64, now time.Time) {
	t.LastCheck = now
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	t.CurrentPrice = price
	if price > t.HighPrice {
		t.HighPrice = price
	}
}

// TrailingStop is the stop placed pct percent below the high-water mark.
func (t *Tracker) TrailingStop(pct float64) float64 {
	return t.HighPrice * (1 - pct/100)
}

// ATRStop is the stop placed mult ATRs below the entry price.
func (t *Tracker) ATRStop(mult float64) float64 {
	return t.EntryPrice - mult*t.ATR
}

// EffectiveStop is the tighter (higher) of the trailing and ATR stops.
func (t *Tracker) EffectiveStop(pct, mult float64) float64 {
	return math.Max(t.TrailingStop(pct), t.ATRStop(mult))
}

// LossPercent is the change from entry at price, in percent.
func (t *Tracker) LossPercent(price float64) float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	return (price - t.EntryPrice) / t.EntryPrice * 100
}

// HeldFor is the time since the position was first tracked.
func (t *Tracker) HeldFor(now time.Time) time.Duration {
	return now.Sub(t.EntryTime)
}

// MarketValue is quantity times the last observed price.
func (t *Tracker) MarketValue() float64 {
	return t.Quantity * t.CurrentPrice
}
