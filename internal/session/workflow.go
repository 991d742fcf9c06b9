package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/logging"
	"robotrader/internal/models"
	"robotrader/internal/notify"
	"robotrader/internal/portfolio"
	"robotrader/internal/signals"
	"robotrader/pkg/utils"
)

// Workflow outcomes.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// WorkflowResult is the outcome of one asset-class workflow.
type WorkflowResult struct {
	Class  models.AssetClass
	Status string
	Trades []models.TradeRecord
	Err    error
}

type candidate struct {
	symbol string
	signal signals.Result
	ret    float64
	last   float64
}

// workflow evaluates and trades one asset class. A panic or an unreachable
// broker fails this class only.
func (r *run) workflow(ctx context.Context, class models.AssetClass) (res WorkflowResult) {
	res = WorkflowResult{Class: class, Status: StatusSuccess}
	log := logging.WithAssetClass(r.log, class.Label())
	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("panic: %v", p)
			log.Error().Interface("panic", p).Msg("Workflow panicked")
		}
		if res.Err != nil && res.Status != StatusFailed {
			res.Status = StatusFailed
		}
		log.Info().Str("status", res.Status).Int("trades", len(res.Trades)).Msg("Workflow finished")
	}()

	gen := r.o.generators[class]
	if gen == nil {
		res.Err = fmt.Errorf("no signal generator for %s", class.Label())
		return res
	}

	buys, sells, err := r.evaluate(ctx, log, gen, r.o.symbolsFor(class))
	if err != nil {
		res.Err = err
		return res
	}

	for _, c := range sells {
		h, ok := r.o.ledger.Holding(c.symbol)
		if !ok || h.Quantity <= 0 {
			continue
		}
		price := c.last
		if h.MarketValue > 0 {
			price = h.MarketValue / h.Quantity
		}
		trade, ok, err := r.execute(ctx, log, class, c, models.OrderSideSell, h.Quantity, price)
		if err != nil {
			res.Err = err
			return res
		}
		if ok {
			r.sold[portfolio.NormalizeSymbol(c.symbol)] = true
			res.Trades = append(res.Trades, trade)
		}
	}

	if class == models.AssetClassEquity {
		sort.SliceStable(buys, func(i, j int) bool { return buys[i].ret > buys[j].ret })
		if len(buys) > r.o.cfg.MaxEquityBuys {
			buys = buys[:r.o.cfg.MaxEquityBuys]
		}
	}

	committed := 0.0
	for _, c := range buys {
		if ctx.Err() != nil {
			break
		}
		if r.sold[portfolio.NormalizeSymbol(c.symbol)] {
			log.Info().Str("symbol", c.symbol).Msg("Skipping buy, symbol was sold this session")
			continue
		}
		price, err := r.o.data.LastPrice(ctx, c.symbol)
		if err != nil || price <= 0 {
			price = c.last
		}
		decision := portfolio.Size(r.o.ledger.AvailableBuyingPower(class)-committed, price, r.o.ledger.TotalValue())
		if decision.Shares <= 0 {
			log.Debug().Str("symbol", c.symbol).Str("reason", decision.Reason).Msg("Buy sized to zero")
			continue
		}
		value := float64(decision.Shares) * price
		if ok, reason := r.o.ledger.CanTrade(class, committed+value); !ok {
			log.Info().Str("symbol", c.symbol).Str("reason", reason).Msg("Buy blocked by allocation")
			continue
		}
		trade, ok, err := r.execute(ctx, log, class, c, models.OrderSideBuy, float64(decision.Shares), price)
		if err != nil {
			res.Err = err
			return res
		}
		if ok {
			committed += trade.Value.InexactFloat64()
			res.Trades = append(res.Trades, trade)
		}
	}
	return res
}

// evaluate fetches history and generates a signal per symbol. Missing data
// skips the symbol; it is an error only when every symbol failed.
func (r *run) evaluate(ctx context.Context, log zerolog.Logger, gen signals.Generator, symbols []string) (buys, sells []candidate, err error) {
	var evaluated, failed int
	var lastErr error
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		bars, err := r.o.data.DailyBars(ctx, sym, r.o.cfg.LookbackDays)
		if err != nil {
			if apperrors.IsNoData(err) {
				log.Warn().Str("symbol", sym).Err(err).Msg("No market data, skipping symbol")
				continue
			}
			failed++
			lastErr = err
			log.Error().Str("symbol", sym).Err(err).Msg("Market data fetch failed")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		evaluated++
		sig := gen.Generate(sym, bars)
		log.Debug().Str("symbol", sym).Str("signal", string(sig.Signal)).Str("reason", sig.Reason).Msg("Signal")
		c := candidate{symbol: sym, signal: sig, ret: signals.TrailingReturn(bars), last: bars[len(bars)-1].Close}
		switch sig.Signal {
		case signals.Buy:
			buys = append(buys, c)
		case signals.Sell:
			sells = append(sells, c)
		}
	}
	if evaluated == 0 && failed > 0 {
		return nil, nil, fmt.Errorf("market data unavailable for %d symbols: %w", failed, lastErr)
	}
	return buys, sells, nil
}

// execute submits one signal order and records it when something filled.
// Rejections are logged and skipped; other broker errors abort the workflow.
func (r *run) execute(ctx context.Context, log zerolog.Logger, class models.AssetClass, c candidate, side models.OrderSide, qty, price float64) (models.TradeRecord, bool, error) {
	res, err := r.o.broker.SubmitMarketOrder(ctx, c.symbol, side, qty)
	if err != nil {
		if apperrors.IsRejection(err) {
			log.Warn().Str("symbol", c.symbol).Str("side", string(side)).Err(err).Msg("Order rejected")
			return models.TradeRecord{}, false, nil
		}
		return models.TradeRecord{}, false, fmt.Errorf("submit %s %s: %w", side, c.symbol, err)
	}
	if res.FilledQty <= 0 {
		log.Warn().Str("symbol", c.symbol).Str("status", string(res.Status)).Msg("Order not confirmed filled, not recorded")
		return models.TradeRecord{}, false, nil
	}
	if res.FillPrice > 0 {
		price = res.FillPrice
	}
	fillPrice := decimal.NewFromFloat(price)
	trade := models.TradeRecord{
		Symbol:     c.symbol,
		AssetClass: class,
		Action:     side,
		Quantity:   res.FilledQty,
		Price:      fillPrice,
		Value:      fillPrice.Mul(decimal.NewFromFloat(res.FilledQty)).Round(2),
		OrderID:    res.OrderID,
	}
	detail := ""
	if side == models.OrderSideBuy {
		detail = "1Y: " + utils.FormatPercent(c.ret*100)
	}
	trade = r.record(trade, detail)

	if r.alerts {
		subject, body := notify.RenderTradeAlert(side, c.symbol, c.signal.Reason, trade.Value)
		if !r.o.notifier.Send(ctx, subject, body, nil) {
			log.Warn().Str("symbol", c.symbol).Msg("Trade alert failed")
		}
	}
	return trade, true, nil
}
