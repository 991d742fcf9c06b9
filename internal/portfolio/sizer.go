package portfolio

import (
	"fmt"
	"math"
)

const (
	// MicroAccountThreshold is the portfolio value below which the micro
	// account cap applies.
	MicroAccountThreshold = 100.0
	// MaxSharesPerTrade caps any single order.
	MaxSharesPerTrade = 10

	microAccountCapFraction = 0.20
	standardCapFraction     = 0.10
	maxPortfolioFraction    = 0.50
)

// SizeDecision explains a sizing result.
type SizeDecision struct {
	Shares      int
	CapNotional float64
	MaxShares   int
	Vetoed      bool
	Reason      string
}

// Size turns available buying power into a bounded share quantity.
// It is a fixed-cap rule and does not scale with signal strength.
func Size(availablePower, price, totalValue float64) SizeDecision {
	if availablePower <= 0 || math.IsNaN(availablePower) {
		return SizeDecision{Reason: "no available buying power"}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return SizeDecision{Reason: fmt.Sprintf("invalid price %.4f", price)}
	}
	if totalValue <= 0 || math.IsNaN(totalValue) {
		return SizeDecision{Reason: "portfolio value unavailable"}
	}

	var capNotional float64
	if totalValue < MicroAccountThreshold {
		capNotional = microAccountCapFraction * totalValue
	} else {
		capNotional = standardCapFraction * availablePower
	}

	maxShares := int(math.Floor(capNotional / price))
	shares := maxShares
	if shares > MaxSharesPerTrade {
		shares = MaxSharesPerTrade
	}
	if shares < 1 {
		shares = 1
	}

	d := SizeDecision{Shares: shares, CapNotional: capNotional, MaxShares: maxShares}
	if notional := float64(shares) * price; notional > maxPortfolioFraction*totalValue {
		d.Shares = 0
		d.Vetoed = true
		d.Reason = fmt.Sprintf("trade value %.2f exceeds %.0f%% of portfolio %.2f", notional, maxPortfolioFraction*100, totalValue)
		return d
	}
	d.Reason = fmt.Sprintf("cap %.2f allows %d shares", capNotional, maxShares)
	return d
}

// RecommendShares returns only the share count from Size.
func RecommendShares(availablePower, price, totalValue float64) int {
	return Size(availablePower, price, totalValue).Shares
}
