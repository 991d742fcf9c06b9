package signals

import (
	"fmt"
	"math"

	"robotrader/internal/analysis/indicators"
	"robotrader/internal/models"
)

// Equity compares a short and a long simple moving average.
type Equity struct {
	Short int
	Long  int
}

// NewEquity returns the 10/30 day moving-average generator.
func NewEquity() *Equity {
	return &Equity{Short: 10, Long: 30}
}

func (g *Equity) Name() string { return "ma_crossover" }

func (g *Equity) MinBars() int { return g.Long }

// Generate returns BUY while the short average is above the long one and
// SELL while it is below.
func (g *Equity) Generate(symbol string, history []models.Candle) Result {
	if len(history) < g.MinBars() {
		return insufficient(symbol, len(history), g.MinBars())
	}
	closes := models.Closes(history)
	short, err := indicators.CalculateSMA(closes, g.Short)
	if err != nil {
		return hold(symbol, err.Error())
	}
	long, err := indicators.CalculateSMA(closes, g.Long)
	if err != nil {
		return hold(symbol, err.Error())
	}

	s, l := indicators.Last(short), indicators.Last(long)
	if l <= 0 {
		return hold(symbol, "invalid moving average")
	}
	gap := (s - l) / l
	r := Result{Symbol: symbol, Confidence: math.Min(1, math.Abs(gap)*10)}
	switch {
	case s > l:
		r.Signal = Buy
	case s < l:
		r.Signal = Sell
	default:
		r.Signal = Hold
	}

	crossed := ""
	if len(history) > g.Long {
		ps, pl := indicators.Prev(short), indicators.Prev(long)
		if (ps > pl) != (s > l) {
			crossed = " (crossed)"
		}
	}
	r.Reason = fmt.Sprintf("MA%d %.2f vs MA%d %.2f%s", g.Short, s, g.Long, l, crossed)
	return r
}

// TrailingReturn is the fractional change over the history window.
func TrailingReturn(history []models.Candle) float64 {
	if len(history) < 2 || history[0].Close <= 0 {
		return 0
	}
	return history[len(history)-1].Close/history[0].Close - 1
}
