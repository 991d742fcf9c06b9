package utils

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketHours_IsOpen(t *testing.T) {
	m := DefaultMarketHours()
	ny := m.Location
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 4, 9, 29, 0, 0, ny), false},
		{"at open", time.Date(2024, 3, 4, 9, 30, 0, 0, ny), true},
		{"midday", time.Date(2024, 3, 4, 12, 0, 0, 0, ny), true},
		{"at close", time.Date(2024, 3, 4, 16, 0, 0, 0, ny), false},
		{"saturday", time.Date(2024, 3, 9, 12, 0, 0, 0, ny), false},
		{"sunday", time.Date(2024, 3, 10, 12, 0, 0, 0, ny), false},
		{"utc input", time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.IsOpen(tc.at))
		})
	}
}

func TestMarketHours_NextOpen(t *testing.T) {
	m := DefaultMarketHours()
	ny := m.Location
	friday := time.Date(2024, 3, 8, 17, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 30, 0, 0, ny), m.NextOpen(friday))

	morning := time.Date(2024, 3, 5, 8, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, ny), m.NextOpen(morning))

	open := time.Date(2024, 3, 5, 10, 0, 0, 0, ny)
	assert.Equal(t, 6*time.Hour, m.TimeUntilClose(open))
	assert.Zero(t, m.TimeUntilClose(friday))
}

func TestNewMarketHours(t *testing.T) {
	m, err := NewMarketHours("America/New_York", "09:30", "16:00")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, m.Open)

	_, err = NewMarketHours("Mars/Olympus", "09:30", "16:00")
	assert.Error(t, err)
	_, err = NewMarketHours("UTC", "16:00", "09:30")
	assert.Error(t, err)
	_, err = ParseClock("9.30")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$1,234.57", FormatUSD(decimal.RequireFromString("1234.567")))
	assert.Equal(t, "-$1,000,000.00", FormatUSD(decimal.NewFromInt(-1000000)))
	assert.Equal(t, "$0.00", FormatUSD(decimal.RequireFromString("-0.001")))
	assert.Equal(t, "+$5.00", FormatPnL(decimal.NewFromInt(5)))
	assert.Equal(t, "+1.50%", FormatPercent(1.5))
	assert.Equal(t, "-2.00%", FormatPercent(-2))
	assert.Equal(t, "0.015", FormatQuantity(0.015))
}

func TestProperty_WeekendsNeverOpen(t *testing.T) {
	m := DefaultMarketHours()
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("open implies weekday inside the window", prop.ForAll(
		func(minutes int64) bool {
			at := time.Date(2024, 1, 1, 0, 0, 0, 0, m.Location).Add(time.Duration(minutes) * time.Minute)
			if !m.IsOpen(at) {
				return true
			}
			local := at.In(m.Location)
			offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
			return !isWeekend(local) && offset >= m.Open && offset < m.Close
		},
		gen.Int64Range(0, 366*24*60),
	))
	properties.TestingRun(t)
}
