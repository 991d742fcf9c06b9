// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"robotrader/internal/models"
	"robotrader/internal/stoploss"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Sessions & trades
	SaveSession(ctx context.Context, session models.SessionRecord, trades []models.TradeRecord) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]models.SessionRecord, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)

	// Position trackers
	stoploss.TrackerStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// SessionFilter represents filters for querying sessions.
type SessionFilter struct {
	SessionType models.SessionType
	Since       time.Time
	Limit       int
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	SessionID string
	Symbol    string
	StopLoss  *bool
	Limit     int
}
