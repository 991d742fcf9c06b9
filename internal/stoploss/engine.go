package stoploss

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"robotrader/internal/analysis/indicators"
	apperrors "robotrader/internal/errors"
	"robotrader/internal/logging"
	"robotrader/internal/metrics"
	"robotrader/internal/models"
)

// PriceHistory supplies daily bars for the ATR estimate.
type PriceHistory interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error)
}

// RegimeSource reports a high-volatility probability. ok is false when no
// estimate exists.
type RegimeSource interface {
	HighVolProbability(ctx context.Context, symbol string) (float64, bool)
}

// Executor is the broker surface the engine needs.
type Executor interface {
	Positions(ctx context.Context) ([]models.BrokerPosition, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (models.OrderResult, error)
}

// TrackerStore persists trackers across restarts.
type TrackerStore interface {
	SaveTrackers(ctx context.Context, trackers []Tracker) error
	DeleteTracker(ctx context.Context, symbol string) error
	LoadTrackers(ctx context.Context) ([]Tracker, error)
}

// Classifier assigns asset classes to new trackers.
type Classifier interface {
	Classify(symbol string) models.AssetClass
}

// Trigger is a position whose stop was crossed.
type Trigger struct {
	Symbol        string
	AssetClass    models.AssetClass
	Quantity      float64
	Price         float64
	Stop          float64
	LossPercent   float64
	Threshold     float64
	RegimeProb    float64
	HasRegimeProb bool
	Reason        string
}

// Execution is the outcome of a stop-loss sell.
type Execution struct {
	Trigger Trigger
	Result  models.OrderResult
}

// Engine owns the symbol to tracker map.
type Engine struct {
	cfg        Config
	executor   Executor
	history    PriceHistory
	regime     RegimeSource
	store      TrackerStore
	classifier Classifier
	metrics    *metrics.Recorder
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	trackers map[string]*Tracker

	execMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegime enables regime-aware threshold tightening.
func WithRegime(r RegimeSource) Option { return func(e *Engine) { e.regime = r } }

// WithStore persists trackers.
func WithStore(s TrackerStore) Option { return func(e *Engine) { e.store = s } }

// WithClassifier tags trackers with their asset class.
func WithClassifier(c Classifier) Option { return func(e *Engine) { e.classifier = c } }

// WithMetrics records trigger and execution counts.
func WithMetrics(m *metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates a stop-loss engine.
func NewEngine(cfg Config, executor Executor, history PriceHistory, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		executor: executor,
		history:  history,
		logger:   logging.WithComponent(logger, "stoploss"),
		now:      time.Now,
		trackers: make(map[string]*Tracker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Restore loads persisted trackers. Existing in-memory trackers win.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	saved, err := e.store.LoadTrackers(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, "load trackers")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range saved {
		t := saved[i]
		t.Symbol = models.CanonicalSymbol(t.Symbol)
		if _, ok := e.trackers[t.Symbol]; ok {
			continue
		}
		e.trackers[t.Symbol] = &t
		n++
	}
	e.metrics.SetTrackedPositions(len(e.trackers))
	e.logger.Info().Int("restored", n).Msg("Restored position trackers")
	return n, nil
}

// Trackers returns copies of all trackers sorted by symbol.
func (e *Engine) Trackers() []Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []Tracker {
	out := make([]Tracker, 0, len(e.trackers))
	for _, t := range e.trackers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Tracker returns a copy of one tracker.
func (e *Engine) Tracker(symbol string) (Tracker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trackers[models.CanonicalSymbol(symbol)]
	if !ok {
		return Tracker{}, false
	}
	return *t, true
}

// Update pulls the broker's positions and syncs trackers against them.
func (e *Engine) Update(ctx context.Context) error {
	positions, err := e.executor.Positions(ctx)
	if err != nil {
		return apperrors.Wrap(err, "fetch positions")
	}
	e.Sync(ctx, positions)
	return nil
}

// Sync creates trackers for new long positions, refreshes existing ones and
// drops trackers for symbols no longer held. ATR bars are fetched before
// the tracker lock is taken.
func (e *Engine) Sync(ctx context.Context, positions []models.BrokerPosition) {
	now := e.now()

	held := make(map[string]models.BrokerPosition, len(positions))
	for _, p := range positions {
		if !p.IsLong() {
			continue
		}
		p.Symbol = models.CanonicalSymbol(p.Symbol)
		held[p.Symbol] = p
	}
	atrs := e.fetchATRs(ctx, e.atrDue(held, now))

	e.mu.Lock()
	defer e.mu.Unlock()

	for sym, p := range held {
		price := p.CurrentPrice()
		t, ok := e.trackers[sym]
		if !ok {
			class := models.AssetClassEquity
			if e.classifier != nil {
				class = e.classifier.Classify(sym)
			}
			atr := atrs[sym]
			e.trackers[sym] = NewTracker(sym, class, p.AverageCost, price, p.Quantity, atr, now)
			e.logger.Info().
				Str("symbol", sym).
				Float64("entry", p.AverageCost).
				Float64("atr", atr).
				Msg("Created position tracker")
			continue
		}
		t.Quantity = p.Quantity
		if p.AverageCost > 0 {
			t.EntryPrice = p.AverageCost
		}
		e.observeLocked(t, price, atrs, now)
	}

	var removed []string
	for sym := range e.trackers {
		if _, ok := held[sym]; !ok {
			delete(e.trackers, sym)
			removed = append(removed, sym)
			e.logger.Info().Str("symbol", sym).Msg("Removed position tracker")
		}
	}
	e.metrics.SetTrackedPositions(len(e.trackers))
	e.persistLocked(ctx, removed)
}

// Refresh records a price observation for one tracked symbol and refreshes
// its ATR when the refresh interval has elapsed.
func (e *Engine) Refresh(ctx context.Context, symbol string, price float64, now time.Time) bool {
	symbol = models.CanonicalSymbol(symbol)
	e.mu.Lock()
	t, ok := e.trackers[symbol]
	stale := ok && e.atrStale(t, now)
	e.mu.Unlock()
	if !ok {
		return false
	}

	var atrs map[string]float64
	if stale {
		atrs = e.fetchATRs(ctx, []string{symbol})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok = e.trackers[symbol]; !ok {
		return false
	}
	e.observeLocked(t, price, atrs, now)
	return true
}

// observeLocked applies a price and, when one was fetched, a fresh ATR.
func (e *Engine) observeLocked(t *Tracker, price float64, atrs map[string]float64, now time.Time) {
	t.Observe(price, now)
	if atr, ok := atrs[t.Symbol]; ok {
		t.ATR = atr
		t.ATRUpdatedAt = now
	}
}

func (e *Engine) atrStale(t *Tracker, now time.Time) bool {
	return now.Sub(t.ATRUpdatedAt) > e.cfg.ATRRefreshInterval
}

// atrDue lists held symbols that are untracked or whose ATR is stale.
func (e *Engine) atrDue(held map[string]models.BrokerPosition, now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var due []string
	for sym := range held {
		if t, ok := e.trackers[sym]; !ok || e.atrStale(t, now) {
			due = append(due, sym)
		}
	}
	sort.Strings(due)
	return due
}

func (e *Engine) fetchATRs(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = e.calculateATR(ctx, sym)
	}
	return out
}

// calculateATR returns 0 when history is unavailable, so the ATR stop adds
// no floor.
func (e *Engine) calculateATR(ctx context.Context, symbol string) float64 {
	if e.history == nil {
		return 0
	}
	bars, err := e.history.DailyBars(ctx, symbol, e.cfg.ATRLookbackDays)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("ATR unavailable")
		return 0
	}
	return indicators.LatestATR(bars, e.cfg.ATRPeriod)
}

// ShouldExit reports whether t must be sold at price. Positions held less
// than the minimum hold time never exit.
func (e *Engine) ShouldExit(t *Tracker, price float64, now time.Time) bool {
	if t.HeldFor(now) < e.cfg.MinHold() {
		return false
	}
	return price < t.EffectiveStop(e.cfg.TrailingPercent, e.cfg.ATRMultiplier)
}

// StateOf returns the lifecycle stage of t at price.
func (e *Engine) StateOf(t *Tracker, price float64, now time.Time) State {
	if t.HeldFor(now) < e.cfg.MinHold() {
		return StateTracking
	}
	if e.ShouldExit(t, price, now) {
		return StateTriggered
	}
	return StateEligible
}

// EffectiveLossThreshold returns the loss-percent threshold, tightened when
// regime-aware mode sees a high-volatility probability above the threshold.
func (e *Engine) EffectiveLossThreshold(prob float64, ok bool) float64 {
	if e.cfg.RegimeAware && ok && prob > e.cfg.HighVolThreshold {
		return e.cfg.StopLossThreshold * e.cfg.HighVolTightening
	}
	return e.cfg.StopLossThreshold
}

func (e *Engine) regimeFor(ctx context.Context, symbol string) (float64, bool) {
	if e.regime == nil || !e.cfg.RegimeAware {
		return 0, false
	}
	return e.regime.HighVolProbability(ctx, symbol)
}

// CheckAll evaluates every tracker against its effective stop.
func (e *Engine) CheckAll(ctx context.Context) []Trigger {
	return e.check(ctx, e.now())
}

// check picks crossed trackers under the lock, then looks up the regime
// signal for each without holding it.
func (e *Engine) check(ctx context.Context, now time.Time) []Trigger {
	e.mu.Lock()
	var crossed []Tracker
	for _, t := range e.snapshotLocked() {
		if t.CurrentPrice > 0 && e.ShouldExit(&t, t.CurrentPrice, now) {
			crossed = append(crossed, t)
		}
	}
	e.mu.Unlock()

	triggers := make([]Trigger, 0, len(crossed))
	for _, t := range crossed {
		stop := t.EffectiveStop(e.cfg.TrailingPercent, e.cfg.ATRMultiplier)
		loss := t.LossPercent(t.CurrentPrice)
		prob, ok := e.regimeFor(ctx, t.Symbol)
		threshold := e.EffectiveLossThreshold(prob, ok)

		trig := Trigger{
			Symbol:        t.Symbol,
			AssetClass:    t.AssetClass,
			Quantity:      t.Quantity,
			Price:         t.CurrentPrice,
			Stop:          stop,
			LossPercent:   loss,
			Threshold:     threshold,
			RegimeProb:    prob,
			HasRegimeProb: ok,
			Reason:        fmt.Sprintf("Stop-loss triggered: Price $%.2f < Stop $%.2f (Loss: %.1f%%)", t.CurrentPrice, stop, loss),
		}
		triggers = append(triggers, trig)
		e.metrics.RecordStopLoss("triggered")

		ev := e.logger.Warn().
			Str("symbol", t.Symbol).
			Float64("entry", t.EntryPrice).
			Float64("high", t.HighPrice).
			Float64("price", t.CurrentPrice).
			Float64("trailing_stop", t.TrailingStop(e.cfg.TrailingPercent)).
			Float64("atr_stop", t.ATRStop(e.cfg.ATRMultiplier)).
			Float64("threshold", threshold)
		if ok {
			ev = ev.Float64("regime_prob", prob)
		}
		ev.Msg(trig.Reason)
	}
	return triggers
}

// BasicTriggers flags long positions whose loss is at or below the loss
// threshold. It is the fallback when the trailing/ATR engine is disabled.
func (e *Engine) BasicTriggers(ctx context.Context, positions []models.BrokerPosition) []Trigger {
	var out []Trigger
	for _, p := range positions {
		if !p.IsLong() || p.AverageCost <= 0 {
			continue
		}
		symbol := models.CanonicalSymbol(p.Symbol)
		price := p.CurrentPrice()
		loss := (price - p.AverageCost) / p.AverageCost * 100
		prob, ok := e.regimeFor(ctx, symbol)
		threshold := e.EffectiveLossThreshold(prob, ok)
		if loss > threshold {
			continue
		}
		class := models.AssetClassEquity
		if e.classifier != nil {
			class = e.classifier.Classify(symbol)
		}
		trig := Trigger{
			Symbol:        symbol,
			AssetClass:    class,
			Quantity:      p.Quantity,
			Price:         price,
			LossPercent:   loss,
			Threshold:     threshold,
			RegimeProb:    prob,
			HasRegimeProb: ok,
			Reason:        fmt.Sprintf("Basic stop-loss: %.1f%% loss ($%.2f vs $%.2f) at or below %.1f%%", loss, price, p.AverageCost, threshold),
		}
		out = append(out, trig)
		e.metrics.RecordStopLoss("triggered")
		e.logger.Warn().Str("symbol", symbol).Float64("loss_pct", loss).Float64("threshold", threshold).Msg(trig.Reason)
	}
	return out
}

// Process sells every triggered position and returns how many sells the
// broker accepted.
func (e *Engine) Process(ctx context.Context) int {
	return len(e.ProcessExecutions(ctx))
}

// ProcessExecutions checks all trackers and sells the triggered ones.
func (e *Engine) ProcessExecutions(ctx context.Context) []Execution {
	return e.Execute(ctx, e.check(ctx, e.now()))
}

// Execute submits full-quantity market sells for the triggers. Executions
// are serialized with each other; the tracker lock is only held to read
// quantities and to drop sold trackers. Stop-loss sells are logged, never
// sent to the notifier.
func (e *Engine) Execute(ctx context.Context, triggers []Trigger) []Execution {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	var executed []Execution
	for _, trig := range triggers {
		if ctx.Err() != nil {
			break
		}
		trig.Symbol = models.CanonicalSymbol(trig.Symbol)
		qty := e.heldQuantity(trig)
		if qty <= 0 {
			continue
		}

		res, err := e.executor.SubmitMarketOrder(ctx, trig.Symbol, models.OrderSideSell, qty)
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", trig.Symbol).Msg("Stop-loss sell failed")
			continue
		}
		// An order that reached the broker is never resubmitted, even
		// when its fill is unconfirmed.
		if res.Status == models.OrderStatusRejected {
			e.logger.Error().
				Str("symbol", trig.Symbol).
				Str("status", string(res.Status)).
				Str("message", res.Message).
				Msg("Stop-loss sell not accepted")
			continue
		}

		executed = append(executed, Execution{Trigger: trig, Result: res})
		e.metrics.RecordStopLoss("executed")
		logging.LogStopLoss(e.logger, trig.Symbol, trig.LossPercent, trig.Reason)
	}

	if len(executed) > 0 {
		e.mu.Lock()
		removed := make([]string, 0, len(executed))
		for _, ex := range executed {
			delete(e.trackers, ex.Trigger.Symbol)
			removed = append(removed, ex.Trigger.Symbol)
		}
		e.metrics.SetTrackedPositions(len(e.trackers))
		e.persistLocked(ctx, removed)
		e.mu.Unlock()
	}
	return executed
}

// heldQuantity prefers the tracker's quantity over the trigger's.
func (e *Engine) heldQuantity(trig Trigger) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.trackers[trig.Symbol]; ok {
		return t.Quantity
	}
	return trig.Quantity
}

func (e *Engine) persistLocked(ctx context.Context, removed []string) {
	if e.store == nil {
		return
	}
	for _, sym := range removed {
		if err := e.store.DeleteTracker(ctx, sym); err != nil {
			e.logger.Warn().Err(err).Str("symbol", sym).Msg("Failed to delete persisted tracker")
		}
	}
	if err := e.store.SaveTrackers(ctx, e.snapshotLocked()); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to persist trackers")
	}
}

// RunCycle refreshes trackers and sells whatever triggered. With the
// trailing/ATR engine disabled it falls back to BasicTriggers.
func (e *Engine) RunCycle(ctx context.Context) ([]Execution, error) {
	positions, err := e.executor.Positions(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "fetch positions")
	}
	if !e.cfg.Enabled {
		return e.Execute(ctx, e.BasicTriggers(ctx, positions)), nil
	}
	e.Sync(ctx, positions)
	return e.ProcessExecutions(ctx), nil
}
