// Package portfolio maps holdings to asset classes, tracks current versus
// target allocation and sizes new trades within the allocation limits.
package portfolio

import (
	"fmt"
	"math"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

// AllocationTolerance is the fixed overshoot permitted above a target
// allocation before new buys in that class are blocked.
const AllocationTolerance = 0.05

// allocationSumTolerance bounds how far the targets may sum away from 1.0.
const allocationSumTolerance = 0.01

// AssetAllocation holds the target fraction per asset class. It is validated
// on construction and immutable afterwards.
type AssetAllocation struct {
	equity      float64
	fixedIncome float64
	crypto      float64
}

// NewAssetAllocation validates and builds a target allocation.
func NewAssetAllocation(equity, fixedIncome, crypto float64) (AssetAllocation, error) {
	for name, v := range map[string]float64{"equity": equity, "fixed_income": fixedIncome, "crypto": crypto} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return AssetAllocation{}, apperrors.NewValidationError("allocation."+name, v, "target must be within [0, 1]")
		}
	}
	total := equity + fixedIncome + crypto
	if math.Abs(total-1.0) > allocationSumTolerance {
		return AssetAllocation{}, apperrors.NewValidationError("allocation", total,
			fmt.Sprintf("targets must sum to 1.0 (got %.4f)", total))
	}
	return AssetAllocation{equity: equity, fixedIncome: fixedIncome, crypto: crypto}, nil
}

// DefaultAllocation is the 60/30/10 split.
func DefaultAllocation() AssetAllocation {
	return AssetAllocation{equity: 0.60, fixedIncome: 0.30, crypto: 0.10}
}

// Target returns the target fraction for a class.
func (a AssetAllocation) Target(class models.AssetClass) float64 {
	switch class {
	case models.AssetClassEquity:
		return a.equity
	case models.AssetClassFixedIncome:
		return a.fixedIncome
	case models.AssetClassCrypto:
		return a.crypto
	}
	return 0
}

// Sum returns the total of the three targets.
func (a AssetAllocation) Sum() float64 {
	return a.equity + a.fixedIncome + a.crypto
}

func (a AssetAllocation) String() string {
	return fmt.Sprintf("equity=%.0f%% fixed_income=%.0f%% crypto=%.0f%%", a.equity*100, a.fixedIncome*100, a.crypto*100)
}

// AllocationConfig is the configuration form of the targets.
type AllocationConfig struct {
	Equity      float64 `mapstructure:"equity" default:"0.60" validate:"gte=0,lte=1"`
	FixedIncome float64 `mapstructure:"fixed_income" default:"0.30" validate:"gte=0,lte=1"`
	Crypto      float64 `mapstructure:"crypto" default:"0.10" validate:"gte=0,lte=1"`
}

// Build validates the configured targets.
func (c AllocationConfig) Build() (AssetAllocation, error) {
	return NewAssetAllocation(c.Equity, c.FixedIncome, c.Crypto)
}
