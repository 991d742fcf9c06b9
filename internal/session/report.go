package session

import (
	"robotrader/internal/models"
	"robotrader/internal/notify"
)

// Report is everything one session did.
type Report struct {
	Record        models.SessionRecord
	Trades        []models.TradeRecord
	Purchased     []notify.TradeLine
	Sold          []notify.TradeLine
	Workflows     []WorkflowResult
	StopLossExits int
	Interrupted   bool
	Notified      bool
}

// Workflow returns the result for class.
func (r *Report) Workflow(class models.AssetClass) (WorkflowResult, bool) {
	for _, w := range r.Workflows {
		if w.Class == class {
			return w, true
		}
	}
	return WorkflowResult{}, false
}

// Summary converts the report for rendering.
func (r *Report) Summary(nextSession string) notify.SessionSummary {
	s := notify.SessionSummary{
		SessionType:  r.Record.SessionType,
		StartedAt:    r.Record.StartedAt,
		TotalTrades:  r.Record.TotalTrades,
		Purchased:    r.Purchased,
		Sold:         r.Sold,
		MoneySpent:   r.Record.MoneySpent,
		MoneyEarned:  r.Record.MoneyEarned,
		StopLossExit: r.StopLossExits,
		NextSession:  nextSession,
		Interrupted:  r.Interrupted,
	}
	for _, w := range r.Workflows {
		line := notify.WorkflowLine{Class: w.Class, Status: w.Status, Trades: len(w.Trades)}
		if w.Err != nil {
			line.Error = w.Err.Error()
		}
		s.Workflows = append(s.Workflows, line)
	}
	return s
}
