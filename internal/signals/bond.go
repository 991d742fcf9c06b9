package signals

import (
	"fmt"

	"robotrader/internal/analysis/indicators"
	"robotrader/internal/models"
)

// YieldSource optionally reports a bond ETF's current yield in percent.
type YieldSource func(symbol string) (float64, bool)

// Bond votes across trend, RSI, MACD, volatility and yield.
type Bond struct {
	MinVotes int
	Yield    YieldSource
}

// NewBond returns the bond generator requiring three agreeing votes.
func NewBond() *Bond {
	return &Bond{MinVotes: 3}
}

func (g *Bond) Name() string { return "bond_technical" }

func (g *Bond) MinBars() int { return 50 }

func (g *Bond) Generate(symbol string, history []models.Candle) Result {
	if len(history) < g.MinBars() {
		return insufficient(symbol, len(history), g.MinBars())
	}
	closes := models.Closes(history)
	var b ballot

	sma20, _ := indicators.CalculateSMA(closes, 20)
	sma50, _ := indicators.CalculateSMA(closes, 50)
	s20, s50 := indicators.Last(sma20), indicators.Last(sma50)
	trend := 0
	if sma200, err := indicators.CalculateSMA(closes, 200); err == nil {
		s200 := indicators.Last(sma200)
		switch {
		case s20 > s50 && s50 > s200:
			trend = 1
		case s20 < s50 && s50 < s200:
			trend = -1
		}
	} else {
		price := indicators.Last(closes)
		switch {
		case price > s20 && s20 > s50:
			trend = 1
		case price < s20 && s20 < s50:
			trend = -1
		}
	}
	b.vote(trend, "trend")

	if rsi, err := indicators.NewRSI(14).Calculate(history); err == nil {
		b.vote(rsiVote(indicators.Last(rsi)), fmt.Sprintf("rsi %.1f", indicators.Last(rsi)))
	}

	if macd, err := indicators.NewMACD(12, 26, 9).Calculate(history); err == nil {
		b.vote(sign(indicators.Last(macd.MACD) > indicators.Last(macd.Signal)), "macd")
	}

	short, errS := indicators.RealizedVolatility(history, 20)
	long, errL := indicators.RealizedVolatility(history, minInt(60, len(history)-1))
	if errS == nil && errL == nil && long > 0 {
		v := 0
		switch {
		case short < long*0.8:
			v = 1
		case short > long*1.2:
			v = -1
		}
		b.vote(v, fmt.Sprintf("vol ratio %.2f", short/long))
	}

	if g.Yield != nil {
		y, ok := g.Yield(symbol)
		v := 0
		switch {
		case ok && y > 3.0:
			v = 1
		case ok && y < 1.0:
			v = -1
		}
		b.vote(v, fmt.Sprintf("yield %.2f", y))
	}

	return b.decide(symbol, g.MinVotes)
}

func rsiVote(rsi float64) int {
	switch {
	case rsi < 30:
		return 1
	case rsi > 70:
		return -1
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
