// Package signals produces BUY/SELL/HOLD signals per asset class from daily
// price history.
package signals

import (
	"fmt"
	"strings"

	"robotrader/internal/models"
)

// Signal is a trading direction.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// Result is a generated signal with its confidence in [0, 1] and a short
// explanation.
type Result struct {
	Symbol     string
	Signal     Signal
	Confidence float64
	Reason     string
	// Insufficient is set when the history was too short to evaluate.
	Insufficient bool
}

// Generator produces a signal from a symbol's daily history.
type Generator interface {
	Name() string
	MinBars() int
	Generate(symbol string, history []models.Candle) Result
}

func hold(symbol, reason string) Result {
	return Result{Symbol: symbol, Signal: Hold, Reason: reason}
}

func insufficient(symbol string, have, need int) Result {
	return Result{
		Symbol:       symbol,
		Signal:       Hold,
		Reason:       fmt.Sprintf("insufficient data: %d bars, need %d", have, need),
		Insufficient: true,
	}
}

// ballot collects indicator votes. A direction wins only with at least
// minVotes and strictly more votes than the other side.
type ballot struct {
	buy, sell, total int
	notes            []string
}

func (b *ballot) vote(v int, note string) {
	b.total++
	switch {
	case v > 0:
		b.buy++
		b.notes = append(b.notes, note+" buy")
	case v < 0:
		b.sell++
		b.notes = append(b.notes, note+" sell")
	default:
		b.notes = append(b.notes, note+" hold")
	}
}

func (b *ballot) decide(symbol string, minVotes int) Result {
	r := Result{Symbol: symbol, Signal: Hold, Reason: strings.Join(b.notes, ", ")}
	switch {
	case b.buy >= minVotes && b.buy > b.sell:
		r.Signal = Buy
		r.Confidence = float64(b.buy) / float64(b.total)
	case b.sell >= minVotes && b.sell > b.buy:
		r.Signal = Sell
		r.Confidence = float64(b.sell) / float64(b.total)
	}
	return r
}

func sign(cond bool) int {
	if cond {
		return 1
	}
	return -1
}
