// Package broker provides the broker execution interface, its Alpaca and
// paper implementations, and the serialized session used by the bot.
package broker

import (
	"context"
	"time"

	"robotrader/internal/models"
)

// Broker is a single account's execution API. Implementations need not be
// safe for concurrent use; Session serializes access.
type Broker interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Positions(ctx context.Context) ([]models.BrokerPosition, error)
	AccountValue(ctx context.Context) (float64, error)

	SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	OrderStatus(ctx context.Context, orderID string) (models.OrderResult, error)
}

// PriceSource supplies last prices to the paper broker.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Config selects and tunes the broker.
type Config struct {
	Broker       string        `mapstructure:"broker" default:"paper" validate:"oneof=alpaca paper"`
	PaperCash    float64       `mapstructure:"paper_cash" default:"100000" validate:"gte=0"`
	AlpacaURL    string        `mapstructure:"alpaca_base_url" default:"https://paper-api.alpaca.markets"`
	FillTimeout  time.Duration `mapstructure:"fill_timeout" default:"30s" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"fill_poll_interval" default:"1s" validate:"gt=0"`
}
