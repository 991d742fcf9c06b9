package session

import (
	"time"

	"robotrader/internal/portfolio"
)

// ClassView is the JSON view of one asset class.
type ClassView struct {
	Class          string  `json:"class"`
	Target         float64 `json:"target"`
	Current        float64 `json:"current"`
	CurrentValue   float64 `json:"current_value"`
	AvailablePower float64 `json:"available_power"`
	Holdings       int     `json:"holdings"`
}

// LastSessionView summarizes the most recent session.
type LastSessionView struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	StartedAt     time.Time         `json:"started_at"`
	TotalTrades   int               `json:"total_trades"`
	NetProfit     string            `json:"net_profit"`
	StopLossExits int               `json:"stop_loss_exits"`
	Workflows     map[string]string `json:"workflows"`
	Interrupted   bool              `json:"interrupted"`
}

// StatusView is served on the status endpoint.
type StatusView struct {
	TotalValue  float64          `json:"total_value"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Classes     []ClassView      `json:"classes"`
	LastSession *LastSessionView `json:"last_session,omitempty"`
	Stopping    bool             `json:"stopping"`
}

// LastReport returns the most recent completed session, if any.
func (o *Orchestrator) LastReport() *Report {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.last
}

func (o *Orchestrator) setLast(r *Report) {
	o.lastMu.Lock()
	o.last = r
	o.lastMu.Unlock()
}

// Status describes the ledger and last session.
func (o *Orchestrator) Status() StatusView {
	v := StatusView{
		TotalValue: o.ledger.TotalValue(),
		UpdatedAt:  o.ledger.UpdatedAt(),
		Stopping:   o.Stopping(),
	}
	for _, cs := range o.ledger.Status() {
		v.Classes = append(v.Classes, classView(cs))
	}
	if r := o.LastReport(); r != nil {
		ls := &LastSessionView{
			ID:            r.Record.ID,
			Type:          string(r.Record.SessionType),
			StartedAt:     r.Record.StartedAt,
			TotalTrades:   r.Record.TotalTrades,
			NetProfit:     r.Record.NetProfit.StringFixed(2),
			StopLossExits: r.StopLossExits,
			Workflows:     make(map[string]string, len(r.Workflows)),
			Interrupted:   r.Interrupted,
		}
		for _, w := range r.Workflows {
			ls.Workflows[w.Class.Label()] = w.Status
		}
		v.LastSession = ls
	}
	return v
}

func classView(cs portfolio.ClassStatus) ClassView {
	return ClassView{
		Class:          cs.Class.Label(),
		Target:         cs.Target,
		Current:        cs.Current,
		CurrentValue:   cs.CurrentValue,
		AvailablePower: cs.AvailablePower,
		Holdings:       cs.Holdings,
	}
}
