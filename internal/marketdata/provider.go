// Package marketdata fetches daily bars and last prices from Yahoo Finance
// or Alpaca, with caching and retry layered on top.
package marketdata

import (
	"context"

	"robotrader/internal/models"
)

// Provider is a source of daily bars and last prices. Partial history is
// returned as-is; a symbol with no data yields ErrNoData or ErrSymbolNotFound.
type Provider interface {
	Name() string
	DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// cleanBars drops malformed bars so indicators never see them.
func cleanBars(bars []models.Candle) []models.Candle {
	out := bars[:0]
	for _, b := range bars {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}
