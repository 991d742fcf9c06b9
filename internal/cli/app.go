package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"robotrader/internal/analysis/regime"
	"robotrader/internal/broker"
	"robotrader/internal/config"
	"robotrader/internal/marketdata"
	"robotrader/internal/metrics"
	"robotrader/internal/models"
	"robotrader/internal/notify"
	"robotrader/internal/portfolio"
	"robotrader/internal/resilience"
	"robotrader/internal/scheduler"
	"robotrader/internal/server"
	"robotrader/internal/session"
	"robotrader/internal/stoploss"
	"robotrader/internal/store"
)

// Runtime is the wired trading stack shared by the commands.
type Runtime struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Metrics      *metrics.Recorder
	Store        *store.SQLiteStore
	Data         *marketdata.Stack
	Broker       *broker.Session
	Ledger       *portfolio.Ledger
	Engine       *stoploss.Engine
	Monitor      *stoploss.Monitor
	Scheduler    *scheduler.Scheduler
	Orchestrator *session.Orchestrator
	Health       *resilience.HealthMonitor
}

// NewRuntime builds every component from the configuration. out receives
// terminal notifications.
func NewRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, out io.Writer, color bool) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics.New()}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	rt.Store = st

	breaker := cfg.Retry.Breaker()
	dataPolicy := resilience.DataFetchPolicy(cfg.Retry.DataAttempts, cfg.Retry.DataDelay, breaker, logger)
	brokerPolicy := resilience.BrokerPolicy(cfg.Retry.BrokerAttempts, cfg.Retry.BrokerDelay, breaker, logger)
	notifyPolicy := resilience.NotifyPolicy(cfg.Retry.NotifyAttempts, cfg.Retry.NotifyDelay, logger)

	creds := cfg.Credentials
	stack, err := marketdata.NewStack(ctx, cfg.MarketData, creds.AlpacaKey, creds.AlpacaSecret, dataPolicy, rt.Metrics, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("market data: %w", err)
	}
	rt.Data = stack

	var b broker.Broker
	switch cfg.Trading.Broker {
	case "alpaca":
		b = broker.NewAlpacaBroker(creds.AlpacaKey, creds.AlpacaSecret, cfg.Trading.AlpacaURL, logger)
	default:
		b = broker.NewPaperBroker(stack.Provider, cfg.Trading.PaperCash)
	}
	rt.Broker = broker.NewSession(b, cfg.Trading.Config, brokerPolicy, rt.Metrics, logger)

	classifier := portfolio.NewClassifier(
		union(portfolio.DefaultFixedIncomeSymbols, cfg.Symbols.Bonds),
		union(portfolio.DefaultCryptoSymbols, cfg.Symbols.Crypto),
		logger,
	)
	rt.Ledger = portfolio.NewLedger(cfg.TargetAllocation(), classifier)

	detector := regime.NewDetector(cfg.Regime, stack.Provider, logger)
	rt.Engine = stoploss.NewEngine(cfg.StopLoss, rt.Broker, stack.Provider, logger,
		stoploss.WithRegime(detector),
		stoploss.WithStore(st),
		stoploss.WithClassifier(classifier),
		stoploss.WithMetrics(rt.Metrics),
	)

	sched, err := scheduler.New(cfg.Schedule, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Scheduler = sched
	rt.Monitor = stoploss.NewMonitor(rt.Engine, sched.IsMarketOpen, logger)

	var notifiers []notify.Notifier
	if cfg.Notifications.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Notifications.Email, notifyPolicy, rt.Metrics, logger))
	}
	if cfg.Notifications.Terminal && out != nil {
		notifiers = append(notifiers, notify.NewTerminalNotifier(out, color))
	}
	var notifier notify.Notifier = notify.NewNoOpNotifier(logger)
	if len(notifiers) > 0 {
		notifier = notify.NewMultiNotifier(notifiers...)
	}

	rt.Orchestrator = session.New(cfg.SessionConfig(), rt.Broker, stack.Provider, rt.Ledger, logger,
		session.WithStopLoss(rt.Engine),
		session.WithStore(st),
		session.WithNotifier(notifier),
		session.WithMetrics(rt.Metrics),
		session.WithNextSession(rt.nextSessionLabel),
	)
	rt.Monitor.OnExecutions(rt.Orchestrator.RecordExits)
	rt.Monitor.Serialize(rt.Orchestrator.TryExclusive)

	rt.Health = resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig(), logger)
	rt.Health.RegisterComponent("broker", true, resilience.ConnectionHealthCheck(rt.Broker.IsConnected))
	rt.Health.RegisterComponent("database", true, resilience.DatabaseHealthCheck(st.Ping))
	rt.Health.RegisterComponent("broker_breakers", false, resilience.BreakerHealthCheck(brokerPolicy))
	rt.Health.RegisterComponent("market_data_breakers", false, resilience.BreakerHealthCheck(dataPolicy))

	return rt, nil
}

// union merges symbol lists without touching either input.
func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func (rt *Runtime) nextSessionLabel(now time.Time) string {
	typ, at, err := rt.Scheduler.NextSession(now)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", at.Format("Mon Jan 2 15:04 MST"), typ)
}

// Start connects the broker, restores trackers and loads the portfolio.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Broker.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s broker: %w", rt.Broker.Name(), err)
	}
	if _, err := rt.Engine.Restore(ctx); err != nil {
		rt.Logger.Warn().Err(err).Msg("Could not restore position trackers")
	}
	return rt.RefreshLedger(ctx)
}

// RefreshLedger rebuilds allocations from a fresh broker snapshot.
func (rt *Runtime) RefreshLedger(ctx context.Context) error {
	snap, err := rt.Broker.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("portfolio snapshot: %w", err)
	}
	rt.Ledger.Update(snap)
	return nil
}

// RunSession runs one session and logs the outcome.
func (rt *Runtime) RunSession(ctx context.Context, typ models.SessionType) *session.Report {
	report, err := rt.Orchestrator.RunSession(ctx, typ)
	if err != nil {
		rt.Logger.Warn().Err(err).Str("session", string(typ)).Msg("Session not run")
		return nil
	}
	for _, cs := range rt.Ledger.Status() {
		rt.Logger.Info().
			Str("class", cs.Class.Label()).
			Float64("current", cs.Current).
			Float64("target", cs.Target).
			Float64("available", cs.AvailablePower).
			Msg("Portfolio allocation")
	}
	return report
}

// StatusDocument is served on /status and printed by the status command.
type StatusDocument struct {
	Mode        string             `json:"mode"`
	Broker      string             `json:"broker"`
	Connected   bool               `json:"connected"`
	Portfolio   session.StatusView `json:"portfolio"`
	Trackers    []TrackerView      `json:"trackers"`
	Schedule    []scheduler.Entry  `json:"schedule,omitempty"`
	NextSession string             `json:"next_session"`
}

// TrackerView is the JSON view of a position tracker.
type TrackerView struct {
	Symbol     string    `json:"symbol"`
	Class      string    `json:"class"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	HighPrice  float64   `json:"high_price"`
	Price      float64   `json:"price"`
	Stop       float64   `json:"stop"`
	PnLPct     float64   `json:"pnl_percent"`
	EntryTime  time.Time `json:"entry_time"`
}

// Status assembles the status document.
func (rt *Runtime) Status(context.Context) (interface{}, error) {
	return rt.StatusDocument(), nil
}

// StatusDocument returns the current status.
func (rt *Runtime) StatusDocument() StatusDocument {
	cfg := rt.Engine.Config()
	doc := StatusDocument{
		Mode:        rt.Config.Trading.Mode,
		Broker:      rt.Broker.Name(),
		Connected:   rt.Broker.IsConnected(),
		Portfolio:   rt.Orchestrator.Status(),
		Schedule:    rt.Scheduler.Entries(),
		NextSession: rt.nextSessionLabel(time.Now()),
		Trackers:    []TrackerView{},
	}
	for _, t := range rt.Engine.Trackers() {
		doc.Trackers = append(doc.Trackers, trackerView(t, cfg))
	}
	return doc
}

func trackerView(t stoploss.Tracker, cfg stoploss.Config) TrackerView {
	return TrackerView{
		Symbol:     t.Symbol,
		Class:      t.AssetClass.Label(),
		Quantity:   t.Quantity,
		EntryPrice: t.EntryPrice,
		HighPrice:  t.HighPrice,
		Price:      t.CurrentPrice,
		Stop:       t.EffectiveStop(cfg.TrailingPercent, cfg.ATRMultiplier),
		PnLPct:     t.LossPercent(t.CurrentPrice),
		EntryTime:  t.EntryTime,
	}
}

// NewServer builds the health and status HTTP server.
func (rt *Runtime) NewServer() *server.Server {
	return server.New(rt.Config.Health, server.Options{
		Health:  rt.Health,
		Ready:   rt.Broker.IsConnected,
		Status:  rt.Status,
		Metrics: rt.Metrics.Handler(),
	}, rt.Logger)
}

// Close disconnects the broker and releases the data cache and store.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Broker != nil {
		if err := rt.Broker.Disconnect(ctx); err != nil {
			rt.Logger.Warn().Err(err).Msg("Broker disconnect failed")
		}
	}
	if rt.Data != nil {
		if err := rt.Data.Close(); err != nil {
			rt.Logger.Warn().Err(err).Msg("Closing market data cache failed")
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			rt.Logger.Warn().Err(err).Msg("Closing store failed")
		}
	}
}
