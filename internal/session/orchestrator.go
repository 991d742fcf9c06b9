// Package session runs scheduled trading sessions: stop-loss exits first,
// then isolated per-class signal workflows gated by allocation limits, then
// one summary.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"robotrader/internal/logging"
	"robotrader/internal/metrics"
	"robotrader/internal/models"
	"robotrader/internal/notify"
	"robotrader/internal/portfolio"
	"robotrader/internal/signals"
	"robotrader/internal/stoploss"
)

// Broker is the execution surface the orchestrator needs.
type Broker interface {
	Snapshot(ctx context.Context) (models.AccountSnapshot, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (models.OrderResult, error)
}

// MarketData supplies history and quotes.
type MarketData interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// StopLoss runs one exit cycle.
type StopLoss interface {
	RunCycle(ctx context.Context) ([]stoploss.Execution, error)
}

// Store persists session audit rows.
type Store interface {
	SaveSession(ctx context.Context, session models.SessionRecord, trades []models.TradeRecord) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithStopLoss(s StopLoss) Option { return func(o *Orchestrator) { o.stopLoss = s } }

func WithStore(s Store) Option { return func(o *Orchestrator) { o.store = s } }

func WithNotifier(n notify.Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

func WithMetrics(m *metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithNextSession sets the label printed in the summary footer.
func WithNextSession(f func(time.Time) string) Option {
	return func(o *Orchestrator) { o.nextSession = f }
}

// WithGenerator overrides the signal generator for a class.
func WithGenerator(class models.AssetClass, g signals.Generator) Option {
	return func(o *Orchestrator) { o.generators[class] = g }
}

// Orchestrator runs sessions one at a time.
type Orchestrator struct {
	cfg        Config
	broker     Broker
	data       MarketData
	ledger     *portfolio.Ledger
	stopLoss   StopLoss
	store      Store
	notifier   notify.Notifier
	metrics    *metrics.Recorder
	generators map[models.AssetClass]signals.Generator
	logger     zerolog.Logger

	now         func() time.Time
	nextSession func(time.Time) string

	mu       sync.Mutex
	stopping atomic.Bool

	lastMu sync.RWMutex
	last   *Report
}

// New creates an orchestrator with the default signal generators.
func New(cfg Config, broker Broker, data MarketData, ledger *portfolio.Ledger, logger zerolog.Logger, opts ...Option) *Orchestrator {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultConfig().LookbackDays
	}
	if cfg.MaxEquityBuys <= 0 {
		cfg.MaxEquityBuys = DefaultConfig().MaxEquityBuys
	}
	cfg.Symbols.SetDefaults()

	o := &Orchestrator{
		cfg:    cfg,
		broker: broker,
		data:   data,
		ledger: ledger,
		generators: map[models.AssetClass]signals.Generator{
			models.AssetClassEquity:      signals.NewEquity(),
			models.AssetClassFixedIncome: signals.NewBond(),
			models.AssetClassCrypto:      signals.NewCrypto(),
		},
		logger: logging.WithComponent(logger, "session"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewNoOpNotifier(o.logger)
	}
	return o
}

// Ledger exposes the allocation ledger for status reporting.
func (o *Orchestrator) Ledger() *portfolio.Ledger { return o.ledger }

// RequestStop makes an in-flight session finish its current workflow, skip
// the rest and summarize. Later sessions are refused.
func (o *Orchestrator) RequestStop() {
	if !o.stopping.Swap(true) {
		o.logger.Info().Msg("Stop requested, remaining workflows will be skipped")
	}
}

// TryExclusive takes the session lock without waiting. The intraday
// stop-loss monitor uses it so it never trades while a session runs.
func (o *Orchestrator) TryExclusive() (release func(), ok bool) {
	if !o.mu.TryLock() {
		return nil, false
	}
	return o.mu.Unlock, true
}

// Stopping reports whether RequestStop was called.
func (o *Orchestrator) Stopping() bool { return o.stopping.Load() }

// symbolsFor returns the configured universe for class.
func (o *Orchestrator) symbolsFor(class models.AssetClass) []string {
	switch class {
	case models.AssetClassEquity:
		return o.cfg.Symbols.Equity
	case models.AssetClassFixedIncome:
		return o.cfg.Symbols.Bonds
	case models.AssetClassCrypto:
		return o.cfg.Symbols.Crypto
	}
	return nil
}

// RunSession runs one complete session. It always summarizes, even when
// workflows fail; the returned error is only for a refused session.
func (o *Orchestrator) RunSession(ctx context.Context, sessionType models.SessionType) (*Report, error) {
	if o.Stopping() {
		return nil, fmt.Errorf("session %s refused: shutdown in progress", sessionType)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	id := uuid.NewString()
	log := logging.WithSession(o.logger, id, string(sessionType))
	logging.LogSessionStart(log, string(sessionType))

	run := &run{
		o:       o,
		log:     log,
		report:  &Report{Record: models.SessionRecord{ID: id, SessionType: sessionType, StartedAt: started}},
		sold:    make(map[string]bool),
		alerts:  o.cfg.TradeAlerts,
		started: started,
	}

	run.stopLossPhase(ctx)

	snapErr := run.refreshLedger(ctx)
	for _, class := range models.AssetClasses {
		if o.Stopping() || ctx.Err() != nil {
			run.report.Interrupted = true
			run.report.Workflows = append(run.report.Workflows, WorkflowResult{Class: class, Status: StatusSkipped})
			continue
		}
		var res WorkflowResult
		if snapErr != nil {
			res = WorkflowResult{Class: class, Status: StatusFailed, Err: snapErr}
		} else {
			res = run.workflow(ctx, class)
		}
		o.metrics.RecordWorkflow(class.Label(), res.Status == StatusSuccess)
		run.report.Workflows = append(run.report.Workflows, res)
		if len(res.Trades) > 0 {
			snapErr = run.refreshLedger(ctx)
		}
	}

	run.finish(ctx)
	o.setLast(run.report)
	o.metrics.RecordSession(string(sessionType), o.now().Sub(started))
	return run.report, nil
}

// run holds the mutable state of one session.
type run struct {
	o       *Orchestrator
	log     zerolog.Logger
	report  *Report
	sold    map[string]bool
	alerts  bool
	started time.Time
}

// stopLossPhase submits forced exits before any signal is evaluated.
func (r *run) stopLossPhase(ctx context.Context) {
	if r.o.stopLoss == nil {
		return
	}
	execs, err := r.o.stopLoss.RunCycle(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Stop-loss cycle failed")
	}
	for _, ex := range execs {
		r.sold[portfolio.NormalizeSymbol(ex.Trigger.Symbol)] = true
		r.record(exitTrade(ex), "")
	}
	r.report.StopLossExits = len(execs)
}

// refreshLedger rebuilds allocations from a fresh broker snapshot.
func (r *run) refreshLedger(ctx context.Context) error {
	snap, err := r.o.broker.Snapshot(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to fetch account snapshot")
		return fmt.Errorf("portfolio snapshot: %w", err)
	}
	r.o.ledger.Update(snap)
	alloc := make(map[string]float64)
	for class, frac := range r.o.ledger.CurrentAllocation() {
		alloc[class.Label()] = frac
	}
	r.o.metrics.SetPortfolio(snap.TotalValue, alloc)
	return nil
}

// record appends a trade to the report and money totals.
func (r *run) record(t models.TradeRecord, detail string) models.TradeRecord {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.SessionID = r.report.Record.ID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.o.now()
	}
	rec := &r.report.Record
	rec.TotalTrades++
	switch t.Action {
	case models.OrderSideBuy:
		rec.MoneySpent = rec.MoneySpent.Add(t.Value)
		r.report.Purchased = append(r.report.Purchased, notify.TradeLine{Symbol: t.Symbol, Value: t.Value, Detail: detail})
	case models.OrderSideSell:
		rec.MoneyEarned = rec.MoneyEarned.Add(t.Value)
		if !t.StopLoss {
			r.report.Sold = append(r.report.Sold, notify.TradeLine{Symbol: t.Symbol, Value: t.Value, Detail: detail})
		}
	}
	rec.NetProfit = rec.MoneyEarned.Sub(rec.MoneySpent)
	r.report.Trades = append(r.report.Trades, t)
	return t
}

// finish persists and sends the one summary for the session.
func (r *run) finish(ctx context.Context) {
	rec := r.report.Record
	summary := r.report.Summary(r.nextSessionLabel())
	subject, body := notify.RenderSessionSummary(summary)

	// Best effort even when the session context is already cancelled.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if r.o.store != nil {
		if err := r.o.store.SaveSession(sendCtx, rec, r.report.Trades); err != nil {
			r.log.Error().Err(err).Msg("Failed to persist session")
		}
	}
	r.report.Notified = r.o.notifier.Send(sendCtx, subject, body, nil)
	if !r.report.Notified {
		r.log.Warn().Msg("Session summary notification failed")
	}

	net, _ := rec.NetProfit.Float64()
	logging.LogSessionEnd(r.log, string(rec.SessionType), rec.TotalTrades, net)
}

func (r *run) nextSessionLabel() string {
	if r.o.nextSession == nil {
		return ""
	}
	return r.o.nextSession(r.o.now())
}
