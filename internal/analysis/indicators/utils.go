package indicators

import (
	"math"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = apperrors.ErrInsufficientData
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = apperrors.NewValidationError("period", 0, "period must be positive")
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := abs(current.High - previous.Close)
	lowClose := abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// Last returns the final element, or 0 for an empty series.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// Prev returns the element before the final one, or 0.
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return values[len(values)-2]
}

// MeanOf returns the mean of the trailing window of values.
func MeanOf(values []float64, window int) float64 {
	if window <= 0 || len(values) == 0 {
		return 0
	}
	if window > len(values) {
		window = len(values)
	}
	return mean(values[len(values)-window:])
}
