package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"robotrader/internal/logging"
	"robotrader/internal/models"
	"robotrader/internal/stoploss"
)

// exitTrade converts a stop-loss execution into a sell record. An exit the
// broker has not confirmed yet is valued at the trigger quantity and price.
func exitTrade(ex stoploss.Execution) models.TradeRecord {
	qty := ex.Result.FilledQty
	price := ex.Result.FillPrice
	if qty <= 0 {
		qty = ex.Trigger.Quantity
	}
	if price <= 0 {
		price = ex.Trigger.Price
	}
	p := decimal.NewFromFloat(price)
	return models.TradeRecord{
		Symbol:     ex.Trigger.Symbol,
		AssetClass: ex.Trigger.AssetClass,
		Action:     models.OrderSideSell,
		Quantity:   qty,
		Price:      p,
		Value:      p.Mul(decimal.NewFromFloat(qty)).Round(2),
		StopLoss:   true,
		OrderID:    ex.Result.OrderID,
	}
}

// RecordExits persists stop-loss exits taken by the intraday monitor as one
// INTRADAY session row. No summary is sent for them.
func (o *Orchestrator) RecordExits(ctx context.Context, execs []stoploss.Execution) {
	if len(execs) == 0 || o.store == nil {
		return
	}
	now := o.now()
	rec := models.SessionRecord{
		ID:          uuid.NewString(),
		SessionType: models.SessionIntraday,
		StartedAt:   now,
	}
	log := logging.WithSession(o.logger, rec.ID, string(rec.SessionType))

	trades := make([]models.TradeRecord, 0, len(execs))
	for _, ex := range execs {
		t := exitTrade(ex)
		t.ID = uuid.NewString()
		t.SessionID = rec.ID
		t.CreatedAt = now
		rec.TotalTrades++
		rec.MoneyEarned = rec.MoneyEarned.Add(t.Value)
		trades = append(trades, t)
	}
	rec.NetProfit = rec.MoneyEarned

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := o.store.SaveSession(saveCtx, rec, trades); err != nil {
		log.Error().Err(err).Msg("Failed to persist intraday stop-loss exits")
		return
	}
	log.Info().Int("exits", rec.TotalTrades).Str("earned", rec.MoneyEarned.StringFixed(2)).Msg("Intraday stop-loss exits recorded")
}
