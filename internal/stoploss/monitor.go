package stoploss

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Monitor runs stop-loss cycles between scheduled sessions, only while the
// market is open.
type Monitor struct {
	engine *Engine
	isOpen func(time.Time) bool
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	lastRun time.Time
	running bool
	onExec  func(context.Context, []Execution)
	gate    func() (release func(), ok bool)
}

// NewMonitor creates an intraday monitor. isOpen decides market hours.
func NewMonitor(engine *Engine, isOpen func(time.Time) bool, logger zerolog.Logger) *Monitor {
	return &Monitor{
		engine: engine,
		isOpen: isOpen,
		now:    engine.now,
		logger: logger.With().Str("component", "intraday_monitor").Logger(),
	}
}

// OnExecutions registers a callback for every cycle that sold something.
func (m *Monitor) OnExecutions(fn func(context.Context, []Execution)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExec = fn
}

// Serialize makes each check acquire tryAcquire first, typically the
// session lock, so intraday exits never interleave with a session's buys.
// A check that cannot acquire it is skipped; the session runs its own
// stop-loss phase.
func (m *Monitor) Serialize(tryAcquire func() (release func(), ok bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = tryAcquire
}

// Due reports whether a check should run at now.
func (m *Monitor) Due(now time.Time) bool {
	if !m.isOpen(now) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun.IsZero() || now.Sub(m.lastRun) >= m.engine.cfg.CheckInterval()
}

// Check runs one cycle if the market is open. Overlapping calls are skipped.
func (m *Monitor) Check(ctx context.Context) (int, error) {
	now := m.now()
	if !m.isOpen(now) {
		m.logger.Debug().Time("now", now).Msg("Market closed, skipping intraday check")
		return 0, nil
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return 0, nil
	}
	m.running = true
	onExec, gate := m.onExec, m.gate
	m.mu.Unlock()

	if gate != nil {
		release, ok := gate()
		if !ok {
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			m.logger.Debug().Msg("Session in progress, skipping intraday check")
			return 0, nil
		}
		defer release()
	}
	defer func() {
		m.mu.Lock()
		m.running = false
		m.lastRun = now
		m.mu.Unlock()
	}()

	executions, err := m.engine.RunCycle(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Intraday stop-loss check failed")
		return 0, err
	}
	if len(executions) > 0 {
		m.logger.Warn().Int("executed", len(executions)).Msg("Intraday stop-loss exits executed")
		if onExec != nil {
			onExec(ctx, executions)
		}
	} else {
		m.logger.Debug().Msg("Intraday stop-loss check complete, no exits")
	}
	return len(executions), nil
}

// Run checks on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.engine.cfg.CheckInterval())
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.engine.cfg.CheckInterval()).Msg("Intraday stop-loss monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Intraday stop-loss monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			_, _ = m.Check(ctx)
		}
	}
}
