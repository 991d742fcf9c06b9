package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionType identifies a scheduled trading session.
type SessionType string

const (
	SessionMorning   SessionType = "MORNING"
	SessionAfternoon SessionType = "AFTERNOON"
	// SessionIntraday groups stop-loss exits taken between sessions.
	SessionIntraday  SessionType = "INTRADAY"
)

// SessionTypeAt picks the session label from the local hour.
func SessionTypeAt(t time.Time) SessionType {
	if t.Hour() < 12 {
		return SessionMorning
	}
	return SessionAfternoon
}

// TradeRecord is an executed signal-driven or risk-driven trade.
type TradeRecord struct {
	ID         string
	SessionID  string
	Symbol     string
	AssetClass AssetClass
	Action     OrderSide
	Quantity   float64
	Price      decimal.Decimal
	Value      decimal.Decimal
	StopLoss   bool
	OrderID    string
	CreatedAt  time.Time
}

// SessionRecord is the persisted audit row of one session.
type SessionRecord struct {
	ID          string
	SessionType SessionType
	StartedAt   time.Time
	TotalTrades int
	MoneySpent  decimal.Decimal
	MoneyEarned decimal.Decimal
	NetProfit   decimal.Decimal
}
