package utils

import (
	"fmt"
	"time"
)

// MarketHours is a weekday trading window in the exchange's local zone.
type MarketHours struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration
}

// DefaultMarketHours is the US equity regular session, 9:30 to 16:00 New York.
func DefaultMarketHours() MarketHours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return MarketHours{Location: loc, Open: 9*time.Hour + 30*time.Minute, Close: 16 * time.Hour}
}

// NewMarketHours builds hours from a zone name and HH:MM bounds.
func NewMarketHours(timezone, open, close string) (MarketHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return MarketHours{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	o, err := ParseClock(open)
	if err != nil {
		return MarketHours{}, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return MarketHours{}, err
	}
	if c <= o {
		return MarketHours{}, fmt.Errorf("market close %s must be after open %s", close, open)
	}
	return MarketHours{Location: loc, Open: o, Close: c}, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsOpen reports whether now falls in the window [open, close) on a weekday.
// Exchange holidays are not considered.
func (m MarketHours) IsOpen(now time.Time) bool {
	local := now.In(m.Location)
	if isWeekend(local) {
		return false
	}
	offset := local.Sub(midnight(local))
	return offset >= m.Open && offset < m.Close
}

// NextOpen returns the next weekday opening strictly after now.
func (m MarketHours) NextOpen(now time.Time) time.Time {
	local := now.In(m.Location)
	next := midnight(local).Add(m.Open)
	if !next.After(local) {
		next = midnight(local.AddDate(0, 0, 1)).Add(m.Open)
	}
	for isWeekend(next) {
		next = midnight(next.AddDate(0, 0, 1)).Add(m.Open)
	}
	return next
}

// CloseOn returns the close time on now's local date.
func (m MarketHours) CloseOn(now time.Time) time.Time {
	local := now.In(m.Location)
	return midnight(local).Add(m.Close)
}

// TimeUntilClose returns the duration until today's close, or zero when
// the market is not open.
func (m MarketHours) TimeUntilClose(now time.Time) time.Duration {
	if !m.IsOpen(now) {
		return 0
	}
	return m.CloseOn(now).Sub(now)
}
