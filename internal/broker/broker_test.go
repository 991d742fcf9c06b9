package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
	"robotrader/internal/resilience"
)

type staticPrices map[string]float64

func (p staticPrices) LastPrice(_ context.Context, symbol string) (float64, error) {
	price, ok := p[symbol]
	if !ok {
		return 0, apperrors.ErrSymbolNotFound
	}
	return price, nil
}

func connectedPaper(t *testing.T, prices staticPrices, cash float64) *PaperBroker {
	t.Helper()
	p := NewPaperBroker(prices, cash)
	require.NoError(t, p.Connect(context.Background()))
	return p
}

func TestPaperBroker_BuyAndSell(t *testing.T) {
	ctx := context.Background()
	p := connectedPaper(t, staticPrices{"AAPL": 100}, 1000)

	res, err := p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, res.Status)
	assert.Equal(t, 400.0, res.Value())
	assert.InDelta(t, 600, p.Cash(), 1e-9)

	positions, err := p.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 4.0, positions[0].Quantity)
	assert.Equal(t, 400.0, positions[0].MarketValue)

	total, err := p.AccountValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000, total, 1e-9)

	_, err = p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideSell, Quantity: 4})
	require.NoError(t, err)
	positions, _ = p.Positions(ctx)
	assert.Empty(t, positions)
	assert.InDelta(t, 1000, p.Cash(), 1e-9)
}

func TestPaperBroker_Rejections(t *testing.T) {
	ctx := context.Background()
	p := connectedPaper(t, staticPrices{"AAPL": 100}, 150)

	res, err := p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
	assert.Equal(t, models.OrderStatusRejected, res.Status)

	_, err = p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideSell, Quantity: 1})
	assert.True(t, apperrors.IsRejection(err))

	status, err := p.OrderStatus(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, status.Status)
}

func TestPaperBroker_RequiresConnection(t *testing.T) {
	p := NewPaperBroker(staticPrices{}, 100)
	_, err := p.Positions(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrBrokerDisconnected)
}

func TestPaperBroker_AverageCost(t *testing.T) {
	ctx := context.Background()
	prices := staticPrices{"SPY": 100}
	p := connectedPaper(t, prices, 10000)

	_, err := p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "SPY", Side: models.OrderSideBuy, Quantity: 1})
	require.NoError(t, err)
	prices["SPY"] = 200
	_, err = p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "SPY", Side: models.OrderSideBuy, Quantity: 1})
	require.NoError(t, err)

	positions, _ := p.Positions(ctx)
	require.Len(t, positions, 1)
	assert.InDelta(t, 150, positions[0].AverageCost, 1e-9)
	assert.InDelta(t, 400, positions[0].MarketValue, 1e-9)
}

// scriptedBroker fails a configurable number of calls and reports a fixed
// order status sequence.
type scriptedBroker struct {
	mu          sync.Mutex
	connected   bool
	connects    int
	failSubmits int
	submits     int
	clientIDs   []string
	statuses    []models.OrderStatus
	polls       int
}

func (b *scriptedBroker) Name() string { return "scripted" }

func (b *scriptedBroker) Connect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	b.connected = true
	return nil
}

func (b *scriptedBroker) Disconnect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *scriptedBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *scriptedBroker) Positions(context.Context) ([]models.BrokerPosition, error) {
	return []models.BrokerPosition{{Symbol: "AAPL", Quantity: 1, MarketValue: 100}}, nil
}

func (b *scriptedBroker) AccountValue(context.Context) (float64, error) { return 1000, nil }

func (b *scriptedBroker) SubmitMarketOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	b.clientIDs = append(b.clientIDs, req.ClientOrderID)
	if b.submits <= b.failSubmits {
		b.connected = false
		return models.OrderResult{}, apperrors.ErrBrokerDisconnected
	}
	return models.OrderResult{OrderID: "o-1", Symbol: req.Symbol, Side: req.Side, Status: models.OrderStatusSubmitted, Quantity: req.Quantity}, nil
}

func (b *scriptedBroker) OrderStatus(_ context.Context, id string) (models.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := models.OrderStatusSubmitted
	if b.polls < len(b.statuses) {
		status = b.statuses[b.polls]
	}
	b.polls++
	return models.OrderResult{OrderID: id, Status: status, FilledQty: 1, FillPrice: 100}, nil
}

func testSession(b Broker, timeout time.Duration) *Session {
	policy := resilience.BrokerPolicy(5, time.Millisecond, resilience.DefaultCircuitBreakerConfig(), zerolog.Nop())
	return NewSession(b, Config{FillTimeout: timeout, PollInterval: time.Millisecond}, policy, nil, zerolog.Nop())
}

func TestSession_ReconnectsAndKeepsClientOrderID(t *testing.T) {
	b := &scriptedBroker{failSubmits: 2, statuses: []models.OrderStatus{models.OrderStatusFilled}}
	s := testSession(b, time.Second)
	require.NoError(t, s.Connect(context.Background()))

	res, err := s.SubmitMarketOrder(context.Background(), "AAPL", models.OrderSideBuy, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, res.Status)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, 3, b.submits)
	assert.GreaterOrEqual(t, b.connects, 3)
	require.Len(t, b.clientIDs, 3)
	assert.Equal(t, b.clientIDs[0], b.clientIDs[2])
}

func TestSession_FillTimeoutIsUnknown(t *testing.T) {
	b := &scriptedBroker{}
	s := testSession(b, 20*time.Millisecond)
	require.NoError(t, s.Connect(context.Background()))

	res, err := s.SubmitMarketOrder(context.Background(), "AAPL", models.OrderSideSell, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusUnknown, res.Status)
	assert.Equal(t, 1, b.submits)
}

func TestSession_RejectionNotRetried(t *testing.T) {
	p := NewPaperBroker(staticPrices{"AAPL": 100}, 50)
	s := testSession(p, time.Second)
	require.NoError(t, s.Connect(context.Background()))

	res, err := s.SubmitMarketOrder(context.Background(), "AAPL", models.OrderSideBuy, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsRejection(err))
	assert.Equal(t, models.OrderStatusRejected, res.Status)
	assert.Equal(t, 1, p.orderCounter)
}

func TestSession_Snapshot(t *testing.T) {
	s := testSession(&scriptedBroker{}, time.Second)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, snap.TotalValue)
	assert.Len(t, snap.Positions, 1)
	assert.True(t, s.IsConnected())
	require.NoError(t, s.Disconnect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
}

func TestSession_InvalidQuantity(t *testing.T) {
	s := testSession(&scriptedBroker{}, time.Second)
	_, err := s.SubmitMarketOrder(context.Background(), "AAPL", models.OrderSideBuy, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
}

func TestOrderSymbol(t *testing.T) {
	tests := []struct {
		in      string
		wantSym string
		wantTIF string
	}{
		{"BTC-USD", "BTC/USD", "gtc"},
		{"BTCUSD", "BTC/USD", "gtc"},
		{"ETH/USD", "ETH/USD", "gtc"},
		{"AAPL", "AAPL", "day"},
		{"GOOGL", "GOOGL", "day"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			sym, tif := orderSymbol(tt.in)
			assert.Equal(t, tt.wantSym, sym)
			assert.EqualValues(t, tt.wantTIF, tif)
		})
	}
}

func TestMapAlpacaStatus(t *testing.T) {
	cases := map[string]models.OrderStatus{
		"filled":           models.OrderStatusFilled,
		"partially_filled": models.OrderStatusPartial,
		"canceled":         models.OrderStatusRejected,
		"new":              models.OrderStatusSubmitted,
		"weird":            models.OrderStatusUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapAlpacaStatus(in), in)
	}
}

func TestProperty_PaperRoundTripConservesValue(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("buy then sell at the same price restores cash", prop.ForAll(
		func(price float64, qty int) bool {
			ctx := context.Background()
			p := NewPaperBroker(staticPrices{"X": price}, 1e9)
			_ = p.Connect(ctx)
			if _, err := p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "X", Side: models.OrderSideBuy, Quantity: float64(qty)}); err != nil {
				return false
			}
			mid, _ := p.AccountValue(ctx)
			if _, err := p.SubmitMarketOrder(ctx, models.OrderRequest{Symbol: "X", Side: models.OrderSideSell, Quantity: float64(qty)}); err != nil {
				return false
			}
			diff := p.Cash() - 1e9
			return diff < 1e-3 && diff > -1e-3 && mid-1e9 < 1e-3 && mid-1e9 > -1e-3
		},
		gen.Float64Range(0.01, 10000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}
