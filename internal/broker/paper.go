package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

type paperPosition struct {
	quantity float64
	avgCost  float64
	price    float64
}

// PaperBroker simulates an account that fills market orders immediately at
// the last price.
type PaperBroker struct {
	prices PriceSource

	mu           sync.RWMutex
	connected    bool
	cash         float64
	positions    map[string]*paperPosition
	orders       map[string]models.OrderResult
	orderCounter int
	now          func() time.Time
}

// NewPaperBroker creates a paper account with initial cash.
func NewPaperBroker(prices PriceSource, initialCash float64) *PaperBroker {
	if initialCash == 0 {
		initialCash = 100000
	}
	return &PaperBroker{
		prices:    prices,
		cash:      initialCash,
		positions: make(map[string]*paperPosition),
		orders:    make(map[string]models.OrderResult),
		now:       time.Now,
	}
}

func (p *PaperBroker) Name() string { return "paper" }

// Connect is a no-op for paper trading.
func (p *PaperBroker) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect is a no-op for paper trading.
func (p *PaperBroker) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *PaperBroker) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Seed adds a holding without touching cash.
func (p *PaperBroker) Seed(symbol string, quantity, avgCost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[symbol] = &paperPosition{quantity: quantity, avgCost: avgCost, price: avgCost}
}

// Cash returns the uninvested balance.
func (p *PaperBroker) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

func (p *PaperBroker) refreshPrices(ctx context.Context) {
	p.mu.RLock()
	symbols := make([]string, 0, len(p.positions))
	for s := range p.positions {
		symbols = append(symbols, s)
	}
	p.mu.RUnlock()

	for _, s := range symbols {
		price, err := p.prices.LastPrice(ctx, s)
		if err != nil || price <= 0 {
			continue
		}
		p.mu.Lock()
		if pos, ok := p.positions[s]; ok {
			pos.price = price
		}
		p.mu.Unlock()
	}
}

func (p *PaperBroker) Positions(ctx context.Context) ([]models.BrokerPosition, error) {
	if !p.IsConnected() {
		return nil, apperrors.ErrBrokerDisconnected
	}
	if p.prices != nil {
		p.refreshPrices(ctx)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.BrokerPosition, 0, len(p.positions))
	for s, pos := range p.positions {
		out = append(out, models.BrokerPosition{
			Symbol:      s,
			Quantity:    pos.quantity,
			MarketValue: pos.quantity * pos.price,
			AverageCost: pos.avgCost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *PaperBroker) AccountValue(ctx context.Context) (float64, error) {
	positions, err := p.Positions(ctx)
	if err != nil {
		return 0, err
	}
	total := p.Cash()
	for _, pos := range positions {
		total += pos.MarketValue
	}
	return total, nil
}

// SubmitMarketOrder fills at the last price. Buys beyond available cash and
// sells beyond the held quantity are rejected.
func (p *PaperBroker) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if !p.IsConnected() {
		return models.OrderResult{}, apperrors.ErrBrokerDisconnected
	}
	if req.Quantity <= 0 {
		return p.reject(req, "quantity must be positive", apperrors.ErrInvalidOrder)
	}

	var price float64
	if p.prices != nil {
		var err error
		price, err = p.prices.LastPrice(ctx, req.Symbol)
		if err != nil {
			return models.OrderResult{}, apperrors.Wrapf(err, "price %s", req.Symbol)
		}
	}
	if price <= 0 {
		return p.reject(req, "no price available", apperrors.ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	value := price * req.Quantity
	pos := p.positions[req.Symbol]
	switch req.Side {
	case models.OrderSideBuy:
		if p.cash < value {
			return p.rejectLocked(req, fmt.Sprintf("insufficient funds: need %.2f, have %.2f", value, p.cash), apperrors.ErrInsufficientFunds)
		}
		if pos == nil {
			pos = &paperPosition{}
			p.positions[req.Symbol] = pos
		}
		pos.avgCost = (pos.avgCost*pos.quantity + value) / (pos.quantity + req.Quantity)
		pos.quantity += req.Quantity
		pos.price = price
		p.cash -= value
	case models.OrderSideSell:
		if pos == nil || pos.quantity < req.Quantity {
			return p.rejectLocked(req, "sell exceeds held quantity", apperrors.ErrInvalidOrder)
		}
		pos.quantity -= req.Quantity
		pos.price = price
		if pos.quantity == 0 {
			delete(p.positions, req.Symbol)
		}
		p.cash += value
	default:
		return p.rejectLocked(req, "unknown side", apperrors.ErrInvalidOrder)
	}

	p.orderCounter++
	res := models.OrderResult{
		OrderID:     fmt.Sprintf("PAPER_%d_%d", p.now().Unix(), p.orderCounter),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Status:      models.OrderStatusFilled,
		Quantity:    req.Quantity,
		FilledQty:   req.Quantity,
		FillPrice:   price,
		SubmittedAt: p.now(),
	}
	p.orders[res.OrderID] = res
	return res, nil
}

func (p *PaperBroker) reject(req models.OrderRequest, msg string, cause error) (models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejectLocked(req, msg, cause)
}

func (p *PaperBroker) rejectLocked(req models.OrderRequest, msg string, cause error) (models.OrderResult, error) {
	p.orderCounter++
	res := models.OrderResult{
		OrderID:     fmt.Sprintf("PAPER_%d_%d", p.now().Unix(), p.orderCounter),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Status:      models.OrderStatusRejected,
		Quantity:    req.Quantity,
		Message:     msg,
		SubmittedAt: p.now(),
	}
	p.orders[res.OrderID] = res
	return res, apperrors.NewOrderError(res.OrderID, req.Symbol, string(req.Side), msg, cause)
}

func (p *PaperBroker) OrderStatus(_ context.Context, orderID string) (models.OrderResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res, ok := p.orders[orderID]
	if !ok {
		return models.OrderResult{}, fmt.Errorf("order %s: %w", orderID, apperrors.ErrInvalidOrder)
	}
	return res, nil
}
