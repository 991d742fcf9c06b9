package signals

import (
	"fmt"

	"robotrader/internal/analysis/indicators"
	"robotrader/internal/models"
)

// Crypto votes across RSI, MACD, EMA trend, Bollinger position and volume.
type Crypto struct {
	MinVotes int
}

// NewCrypto returns the crypto generator requiring three agreeing votes.
func NewCrypto() *Crypto {
	return &Crypto{MinVotes: 3}
}

func (g *Crypto) Name() string { return "crypto_technical" }

func (g *Crypto) MinBars() int { return 50 }

func (g *Crypto) Generate(symbol string, history []models.Candle) Result {
	if len(history) < g.MinBars() {
		return insufficient(symbol, len(history), g.MinBars())
	}
	closes := models.Closes(history)
	var b ballot

	if rsi, err := indicators.NewRSI(14).Calculate(history); err == nil {
		b.vote(rsiVote(indicators.Last(rsi)), fmt.Sprintf("rsi %.1f", indicators.Last(rsi)))
	}

	macdDir := 0
	if macd, err := indicators.NewMACD(12, 26, 9).Calculate(history); err == nil {
		macdDir = sign(indicators.Last(macd.MACD) > indicators.Last(macd.Signal))
		b.vote(macdDir, "macd")
	}

	ema20 := indicators.CalculateEMA(closes, 20)
	ema50 := indicators.CalculateEMA(closes, 50)
	b.vote(sign(indicators.Last(ema20) > indicators.Last(ema50)), "ema20/50")

	if bb, err := indicators.NewBollingerBands(20, 2).Calculate(history); err == nil {
		pb := indicators.Last(bb.PercentB)
		v := 0
		switch {
		case pb < 0.2:
			v = 1
		case pb > 0.8:
			v = -1
		}
		b.vote(v, fmt.Sprintf("bollinger %.2f", pb))
	}

	// Above-average volume confirms the MACD direction.
	volumes := models.Volumes(history)
	avg := indicators.MeanOf(volumes, 20)
	v := 0
	if avg > 0 && indicators.Last(volumes) > avg {
		v = macdDir
	}
	b.vote(v, "volume")

	return b.decide(symbol, g.MinVotes)
}
