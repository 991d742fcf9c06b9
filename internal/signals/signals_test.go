package signals

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"robotrader/internal/models"
)

func series(closes []float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1000 + int64(i),
		}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestEquity_Trend(t *testing.T) {
	g := NewEquity()

	up := g.Generate("NVDA", series(linear(40, 100, 1)))
	assert.Equal(t, Buy, up.Signal)
	assert.Greater(t, up.Confidence, 0.0)

	down := g.Generate("NVDA", series(linear(40, 200, -1)))
	assert.Equal(t, Sell, down.Signal)

	flat := g.Generate("NVDA", series(linear(40, 100, 0)))
	assert.Equal(t, Hold, flat.Signal)
}

func TestGenerators_InsufficientHistory(t *testing.T) {
	for _, g := range []Generator{NewEquity(), NewBond(), NewCrypto()} {
		t.Run(g.Name(), func(t *testing.T) {
			r := g.Generate("X", series(linear(g.MinBars()-1, 100, 1)))
			assert.Equal(t, Hold, r.Signal)
			assert.True(t, r.Insufficient)
		})
	}
}

func TestBallot_Decide(t *testing.T) {
	tests := []struct {
		name  string
		votes []int
		want  Signal
	}{
		{"three buys win", []int{1, 1, 1, -1, 0}, Buy},
		{"two buys are not enough", []int{1, 1, 0, 0}, Hold},
		{"tie holds", []int{1, 1, 1, -1, -1, -1}, Hold},
		{"three sells win", []int{-1, -1, -1, 1}, Sell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ballot
			for _, v := range tt.votes {
				b.vote(v, "x")
			}
			assert.Equal(t, tt.want, b.decide("X", 3).Signal)
		})
	}
}

func TestBond_YieldVote(t *testing.T) {
	g := NewBond()
	g.Yield = func(string) (float64, bool) { return 4.2, true }
	r := g.Generate("TLT", series(linear(80, 90, 0.1)))
	assert.Contains(t, r.Reason, "yield 4.20")
}

func TestTrailingReturn(t *testing.T) {
	assert.InDelta(t, 0.5, TrailingReturn(series([]float64{100, 120, 150})), 1e-9)
	assert.Zero(t, TrailingReturn(nil))
}

func TestGenerators_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("signals are valid with confidence in [0,1]", prop.ForAll(
		func(steps []float64) bool {
			closes := make([]float64, len(steps))
			price := 100.0
			for i, s := range steps {
				price *= 1 + s
				closes[i] = price
			}
			for _, g := range []Generator{NewEquity(), NewBond(), NewCrypto()} {
				r := g.Generate("X", series(closes))
				if r.Signal != Buy && r.Signal != Sell && r.Signal != Hold {
					return false
				}
				if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(120, gen.Float64Range(-0.04, 0.04)),
	))

	properties.TestingRun(t)
}
