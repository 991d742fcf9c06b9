package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robotrader/internal/models"
)

// candlesFromCloses builds well-formed daily bars around the given closes.
func candlesFromCloses(closes []float64, spread float64) []models.Candle {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + spread,
			Low:       c - spread,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestATR_ConstantRange(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	candles := candlesFromCloses(closes, 1)

	got := LatestATR(candles, 14)
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestATR_InsufficientDataReturnsZero(t *testing.T) {
	candles := candlesFromCloses([]float64{100, 101, 102}, 1)
	assert.Equal(t, 0.0, LatestATR(candles, 14))

	_, err := NewATR(14).Calculate(candles)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestATR_MalformedBarReturnsZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	candles := candlesFromCloses(closes, 1)
	candles[5].High = candles[5].Low - 1

	assert.Equal(t, 0.0, LatestATR(candles, 14))
}

func TestSMA_RollingWindow(t *testing.T) {
	got, err := CalculateSMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 3, 4}, got)
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	series, err := NewRSI(14).Calculate(candlesFromCloses(closes, 0.5))
	require.NoError(t, err)
	assert.Equal(t, 100.0, Last(series))
}

func TestMACD_RisingSeriesIsPositive(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 * math.Pow(1.01, float64(i))
	}
	res, err := NewMACD(12, 26, 9).Calculate(candlesFromCloses(closes, 0.5))
	require.NoError(t, err)
	assert.Greater(t, Last(res.MACD), 0.0)
}

func TestBollinger_FlatWindowIsMidBand(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 10
	}
	res, err := NewBollingerBands(20, 2).Calculate(candlesFromCloses(closes, 0.1))
	require.NoError(t, err)
	assert.Equal(t, 0.5, Last(res.PercentB))
}

// Property: RSI values stay within [0, 100] and ATR is never negative for any
// well-formed price path.
func TestIndicatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI in [0,100], ATR >= 0", prop.ForAll(
		func(steps []float64) bool {
			closes := make([]float64, len(steps))
			price := 100.0
			for i, s := range steps {
				price = math.Max(1, price*(1+s))
				closes[i] = price
			}
			candles := candlesFromCloses(closes, 0.5)

			rsi, err := NewRSI(14).Calculate(candles)
			if err != nil {
				return false
			}
			for _, v := range rsi[14:] {
				if v < 0 || v > 100 {
					t.Logf("FAILED: RSI out of bounds: %f", v)
					return false
				}
			}
			return LatestATR(candles, 14) >= 0
		},
		gen.SliceOfN(40, gen.Float64Range(-0.05, 0.05)),
	))

	properties.TestingRun(t)
}
