package indicators

import (
	"fmt"
	"math"

	"robotrader/internal/models"
)

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

// Calculate returns the ATR series. The first period-1 entries are zero.
func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	result[a.period-1] = mean(tr[:a.period])
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// LatestATR returns the most recent ATR value, or 0 when the history is too
// short, the period is invalid, or a bar is malformed.
func LatestATR(candles []models.Candle, period int) float64 {
	for _, c := range candles {
		if !c.Valid() {
			return 0
		}
	}
	series, err := NewATR(period).Calculate(candles)
	if err != nil {
		return 0
	}
	v := Last(series)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// BollingerResult holds Bollinger band series.
type BollingerResult struct {
	Middle   []float64
	Upper    []float64
	Lower    []float64
	PercentB []float64
}

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(candles []models.Candle) (*BollingerResult, error) {
	if b.period <= 0 || b.stdDevMul <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < b.period {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := models.Closes(candles)
	res := &BollingerResult{
		Middle:   make([]float64, n),
		Upper:    make([]float64, n),
		Lower:    make([]float64, n),
		PercentB: make([]float64, n),
	}

	for i := b.period - 1; i < n; i++ {
		window := closes[i-b.period+1 : i+1]
		sma := mean(window)
		sd := stdDev(window)

		res.Middle[i] = sma
		res.Upper[i] = sma + b.stdDevMul*sd
		res.Lower[i] = sma - b.stdDevMul*sd

		// %B = (Price - Lower) / (Upper - Lower); a flat window sits mid-band.
		if width := res.Upper[i] - res.Lower[i]; width != 0 {
			res.PercentB[i] = (closes[i] - res.Lower[i]) / width
		} else {
			res.PercentB[i] = 0.5
		}
	}

	return res, nil
}

// RealizedVolatility is the standard deviation of daily simple returns over
// the trailing window.
func RealizedVolatility(candles []models.Candle, window int) (float64, error) {
	if window <= 1 {
		return 0, ErrInvalidPeriod
	}
	if len(candles) < window+1 {
		return 0, ErrInsufficientData
	}
	closes := models.Closes(candles[len(candles)-window-1:])
	returns := make([]float64, 0, window)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	return stdDev(returns), nil
}
