package broker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

// AlpacaBroker executes against the Alpaca trading API.
type AlpacaBroker struct {
	client *alpaca.Client
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewAlpacaBroker creates a broker for the given credentials. An empty
// baseURL uses the paper trading endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, logger zerolog.Logger) *AlpacaBroker {
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
	}
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		logger: logger.With().Str("component", "alpaca_broker").Logger(),
	}
}

func (a *AlpacaBroker) Name() string { return "alpaca" }

// Connect verifies the credentials by fetching the account.
func (a *AlpacaBroker) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	acct, err := a.client.GetAccount()
	if err != nil {
		a.setConnected(false)
		return mapAlpacaError(err)
	}
	if acct.TradingBlocked || acct.AccountBlocked {
		a.setConnected(false)
		return apperrors.NewBrokerError("ACCOUNT_BLOCKED", "account is blocked from trading", apperrors.ErrConnectionFailed)
	}
	a.setConnected(true)
	a.logger.Info().Str("account", acct.AccountNumber).Msg("Connected to Alpaca")
	return nil
}

func (a *AlpacaBroker) Disconnect(context.Context) error {
	a.setConnected(false)
	return nil
}

func (a *AlpacaBroker) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *AlpacaBroker) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

func (a *AlpacaBroker) Positions(ctx context.Context) ([]models.BrokerPosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := a.client.GetPositions()
	if err != nil {
		return nil, a.fail(err)
	}
	out := make([]models.BrokerPosition, 0, len(raw))
	for _, p := range raw {
		mv := decimal.Zero
		if p.MarketValue != nil {
			mv = *p.MarketValue
		}
		out = append(out, models.BrokerPosition{
			Symbol:      models.CanonicalSymbol(p.Symbol),
			Quantity:    p.Qty.InexactFloat64(),
			MarketValue: mv.InexactFloat64(),
			AverageCost: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

func (a *AlpacaBroker) AccountValue(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	acct, err := a.client.GetAccount()
	if err != nil {
		return 0, a.fail(err)
	}
	return acct.PortfolioValue.InexactFloat64(), nil
}

func (a *AlpacaBroker) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return models.OrderResult{}, err
	}
	qty := decimal.NewFromFloat(req.Quantity)
	symbol, tif := orderSymbol(req.Symbol)
	side := alpaca.Buy
	if req.Side == models.OrderSideSell {
		side = alpaca.Sell
	}

	o, err := a.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		mapped := a.fail(err)
		if apperrors.IsRejection(mapped) {
			return models.OrderResult{
				Symbol:   req.Symbol,
				Side:     req.Side,
				Status:   models.OrderStatusRejected,
				Quantity: req.Quantity,
				Message:  err.Error(),
			}, mapped
		}
		return models.OrderResult{}, mapped
	}
	res := mapAlpacaOrder(o)
	res.Symbol = req.Symbol
	return res, nil
}

func (a *AlpacaBroker) OrderStatus(ctx context.Context, orderID string) (models.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return models.OrderResult{}, err
	}
	o, err := a.client.GetOrder(orderID)
	if err != nil {
		return models.OrderResult{}, a.fail(err)
	}
	return mapAlpacaOrder(o), nil
}

// fail maps the error and drops the connection flag on auth or transport loss.
func (a *AlpacaBroker) fail(err error) error {
	mapped := mapAlpacaError(err)
	if errors.Is(mapped, apperrors.ErrBrokerDisconnected) || errors.Is(mapped, apperrors.ErrConnectionFailed) {
		a.setConnected(false)
	}
	return mapped
}

// orderSymbol converts crypto pairs in any form (BTC-USD, BTCUSD, BTC/USD)
// to Alpaca's BTC/USD order form. Crypto orders must be GTC.
func orderSymbol(symbol string) (string, alpaca.TimeInForce) {
	if base, quote, ok := models.CryptoPair(symbol); ok {
		return base + "/" + quote, alpaca.GTC
	}
	return symbol, alpaca.Day
}

func mapAlpacaOrder(o *alpaca.Order) models.OrderResult {
	if o == nil {
		return models.OrderResult{Status: models.OrderStatusUnknown}
	}
	res := models.OrderResult{
		OrderID:     o.ID,
		Symbol:      models.CanonicalSymbol(o.Symbol),
		Status:      mapAlpacaStatus(o.Status),
		FilledQty:   o.FilledQty.InexactFloat64(),
		SubmittedAt: o.SubmittedAt,
	}
	if o.Side == alpaca.Sell {
		res.Side = models.OrderSideSell
	} else {
		res.Side = models.OrderSideBuy
	}
	if o.Qty != nil {
		res.Quantity = o.Qty.InexactFloat64()
	}
	if o.FilledAvgPrice != nil {
		res.FillPrice = o.FilledAvgPrice.InexactFloat64()
	}
	return res
}

func mapAlpacaStatus(status string) models.OrderStatus {
	switch strings.ToLower(status) {
	case "filled":
		return models.OrderStatusFilled
	case "partially_filled":
		return models.OrderStatusPartial
	case "rejected", "canceled", "expired", "suspended":
		return models.OrderStatusRejected
	case "new", "accepted", "pending_new", "accepted_for_bidding", "calculated", "done_for_day", "held":
		return models.OrderStatusSubmitted
	default:
		return models.OrderStatusUnknown
	}
}

func mapAlpacaError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		if apperrors.IsRetryable(err) {
			return apperrors.NewBrokerError("TRANSPORT", err.Error(), apperrors.ErrConnectionFailed)
		}
		return apperrors.NewBrokerError("UNKNOWN", err.Error(), nil)
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "insufficient"):
		return apperrors.NewBrokerError("INSUFFICIENT_FUNDS", apiErr.Message, apperrors.ErrInsufficientFunds)
	case apiErr.StatusCode == http.StatusUnauthorized:
		return apperrors.NewBrokerError("UNAUTHORIZED", apiErr.Message, apperrors.ErrBrokerDisconnected)
	case apiErr.StatusCode == http.StatusForbidden, apiErr.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.NewBrokerError("REJECTED", apiErr.Message, apperrors.ErrOrderRejected)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewBrokerError("RATE_LIMITED", apiErr.Message, apperrors.ErrRateLimited)
	case apiErr.StatusCode >= 500:
		return apperrors.NewBrokerError("SERVER", apiErr.Message, apperrors.ErrConnectionFailed)
	default:
		return apperrors.NewBrokerError("API", apiErr.Message, nil)
	}
}
