package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"robotrader/internal/models"
)

// Holding is a position as seen by the ledger.
type Holding struct {
	Symbol               string
	Class                models.AssetClass
	Quantity             float64
	MarketValue          float64
	AverageCost          float64
	AllocationPercentage float64
}

// ClassStatus summarizes one asset class for reports.
type ClassStatus struct {
	Class          models.AssetClass
	Target         float64
	Current        float64
	CurrentValue   float64
	AvailablePower float64
	Holdings       int
}

// Ledger owns the current portfolio snapshot and answers allocation
// questions against the targets.
type Ledger struct {
	mu         sync.RWMutex
	targets    AssetAllocation
	classifier *Classifier
	holdings   []Holding
	totalValue float64
	updatedAt  time.Time
}

// NewLedger creates a ledger with the given targets.
func NewLedger(targets AssetAllocation, classifier *Classifier) *Ledger {
	return &Ledger{targets: targets, classifier: classifier}
}

// Targets returns the configured allocation.
func (l *Ledger) Targets() AssetAllocation {
	return l.targets
}

// Classify delegates to the ledger's classifier.
func (l *Ledger) Classify(symbol string) models.AssetClass {
	return l.classifier.Classify(symbol)
}

// Update replaces the holdings wholesale from a fresh broker snapshot.
func (l *Ledger) Update(snapshot models.AccountSnapshot) {
	holdings := make([]Holding, 0, len(snapshot.Positions))
	for _, p := range snapshot.Positions {
		if p.Quantity == 0 {
			continue
		}
		h := Holding{
			Symbol:      NormalizeSymbol(p.Symbol),
			Class:       l.classifier.Classify(p.Symbol),
			Quantity:    p.Quantity,
			MarketValue: p.MarketValue,
			AverageCost: p.AverageCost,
		}
		if snapshot.TotalValue > 0 {
			h.AllocationPercentage = p.MarketValue / snapshot.TotalValue
		}
		holdings = append(holdings, h)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings = holdings
	l.totalValue = snapshot.TotalValue
	l.updatedAt = snapshot.TakenAt
}

// TotalValue returns the portfolio value from the last snapshot.
func (l *Ledger) TotalValue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalValue
}

// UpdatedAt returns when the last snapshot was taken.
func (l *Ledger) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

// Holdings returns a copy of the current holdings.
func (l *Ledger) Holdings() []Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Holding, len(l.holdings))
	copy(out, l.holdings)
	return out
}

// Holding returns the holding for a symbol, if any.
func (l *Ledger) Holding(symbol string) (Holding, bool) {
	s := NormalizeSymbol(symbol)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.holdings {
		if h.Symbol == s {
			return h, true
		}
	}
	return Holding{}, false
}

// CurrentValue returns the market value held in a class.
func (l *Ledger) CurrentValue(class models.AssetClass) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentValueLocked(class)
}

func (l *Ledger) currentValueLocked(class models.AssetClass) float64 {
	var v float64
	for _, h := range l.holdings {
		if h.Class == class {
			v += h.MarketValue
		}
	}
	return v
}

// CurrentAllocation sums allocation percentages by class.
func (l *Ledger) CurrentAllocation() map[models.AssetClass]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[models.AssetClass]float64, len(models.AssetClasses))
	for _, c := range models.AssetClasses {
		out[c] = 0
	}
	for _, h := range l.holdings {
		out[h.Class] += h.AllocationPercentage
	}
	return out
}

// CanTrade reports whether adding tradeValue to the class keeps its
// projected allocation within target + AllocationTolerance.
func (l *Ledger) CanTrade(class models.AssetClass, tradeValue float64) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.totalValue <= 0 || math.IsNaN(l.totalValue) {
		return false, "portfolio value unavailable"
	}
	if tradeValue < 0 || math.IsNaN(tradeValue) {
		return false, fmt.Sprintf("invalid trade value %.2f", tradeValue)
	}

	projected := (l.currentValueLocked(class) + tradeValue) / l.totalValue
	limit := l.targets.Target(class) + AllocationTolerance
	if projected > limit {
		return false, fmt.Sprintf("Would exceed %s limit (%.1f%% > %.1f%%)", class.Label(), projected*100, limit*100)
	}
	return true, fmt.Sprintf("Within %s limit (%.1f%% <= %.1f%%)", class.Label(), projected*100, limit*100)
}

// AvailableBuyingPower returns how much more can be bought in a class
// before reaching the tolerance band. Never negative.
func (l *Ledger) AvailableBuyingPower(class models.AssetClass) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.availableLocked(class)
}

func (l *Ledger) availableLocked(class models.AssetClass) float64 {
	if l.totalValue <= 0 {
		return 0
	}
	targetValue := l.targets.Target(class) * l.totalValue
	return math.Max(0, targetValue*(1+AllocationTolerance)-l.currentValueLocked(class))
}

// Status returns per-class current versus target figures.
func (l *Ledger) Status() []ClassStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ClassStatus, 0, len(models.AssetClasses))
	for _, c := range models.AssetClasses {
		st := ClassStatus{
			Class:          c,
			Target:         l.targets.Target(c),
			CurrentValue:   l.currentValueLocked(c),
			AvailablePower: l.availableLocked(c),
		}
		if l.totalValue > 0 {
			st.Current = st.CurrentValue / l.totalValue
		}
		for _, h := range l.holdings {
			if h.Class == c {
				st.Holdings++
			}
		}
		out = append(out, st)
	}
	return out
}
