package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/logging"
	"robotrader/internal/metrics"
	"robotrader/internal/models"
	"robotrader/internal/resilience"
)

// Session is the bot's single connection to the broker. Every call is
// serialized, reconnects on loss, and runs under the broker retry policy.
type Session struct {
	broker       Broker
	policy       *resilience.Policy
	metrics      *metrics.Recorder
	logger       zerolog.Logger
	fillTimeout  time.Duration
	pollInterval time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewSession wraps a broker. A nil policy calls the broker directly.
func NewSession(b Broker, cfg Config, policy *resilience.Policy, rec *metrics.Recorder, logger zerolog.Logger) *Session {
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Session{
		broker:       b,
		policy:       policy,
		metrics:      rec,
		logger:       logging.WithComponent(logger, "broker_session"),
		fillTimeout:  cfg.FillTimeout,
		pollInterval: cfg.PollInterval,
		now:          time.Now,
	}
}

// Name returns the underlying broker name.
func (s *Session) Name() string { return s.broker.Name() }

// IsConnected does not block on in-flight calls.
func (s *Session) IsConnected() bool { return s.broker.IsConnected() }

// Policy exposes the retry policy for health reporting.
func (s *Session) Policy() *resilience.Policy { return s.policy }

// Connect establishes the connection.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Do(ctx, "connect", func() error {
		return s.broker.Connect(ctx)
	})
}

// Disconnect closes the connection. Safe to call when already closed.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.broker.IsConnected() {
		return nil
	}
	return s.broker.Disconnect(ctx)
}

func (s *Session) ensureConnected(ctx context.Context) error {
	if s.broker.IsConnected() {
		return nil
	}
	s.logger.Warn().Msg("Broker connection lost, reconnecting")
	if err := s.broker.Connect(ctx); err != nil {
		return apperrors.NewBrokerError("RECONNECT", "reconnect failed", apperrors.ErrBrokerDisconnected)
	}
	return nil
}

// Positions returns the broker's current position list.
func (s *Session) Positions(ctx context.Context) ([]models.BrokerPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resilience.DoValue(ctx, s.policy, "positions", func() ([]models.BrokerPosition, error) {
		if err := s.ensureConnected(ctx); err != nil {
			return nil, err
		}
		return s.broker.Positions(ctx)
	})
}

// AccountValue returns the total account value.
func (s *Session) AccountValue(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resilience.DoValue(ctx, s.policy, "account_value", func() (float64, error) {
		if err := s.ensureConnected(ctx); err != nil {
			return 0, err
		}
		return s.broker.AccountValue(ctx)
	})
}

// Snapshot fetches positions and total value together.
func (s *Session) Snapshot(ctx context.Context) (models.AccountSnapshot, error) {
	positions, err := s.Positions(ctx)
	if err != nil {
		return models.AccountSnapshot{}, apperrors.Wrap(err, "fetch positions")
	}
	total, err := s.AccountValue(ctx)
	if err != nil {
		return models.AccountSnapshot{}, apperrors.Wrap(err, "fetch account value")
	}
	return models.AccountSnapshot{TotalValue: total, Positions: positions, TakenAt: s.now()}, nil
}

// SubmitMarketOrder submits a market order and waits for its fill. Retries
// reuse one client order ID so the broker can drop duplicates. Rejections
// return the rejected result alongside the error.
func (s *Session) SubmitMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (models.OrderResult, error) {
	if quantity <= 0 {
		return models.OrderResult{}, apperrors.NewOrderError("", symbol, string(side), "quantity must be positive", apperrors.ErrInvalidOrder)
	}
	req := models.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		ClientOrderID: uuid.NewString(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res models.OrderResult
	err := s.policy.Do(ctx, "submit_order", func() error {
		if err := s.ensureConnected(ctx); err != nil {
			return err
		}
		var err error
		res, err = s.broker.SubmitMarketOrder(ctx, req)
		return err
	})
	if err != nil {
		if apperrors.IsRejection(err) {
			res.Status = models.OrderStatusRejected
			s.metrics.RecordOrder(string(side), string(res.Status))
			logging.LogOrder(s.logger, res.OrderID, symbol, string(side), string(res.Status))
			return res, err
		}
		return models.OrderResult{}, err
	}

	if !res.Status.Terminal() {
		res = s.waitForFillLocked(ctx, res)
	}
	s.metrics.RecordOrder(string(side), string(res.Status))
	logging.LogOrder(s.logger, res.OrderID, symbol, string(side), string(res.Status))
	if res.Status == models.OrderStatusFilled {
		logging.LogTrade(s.logger, symbol, string(side), res.FilledQty, res.FillPrice, res.OrderID)
	}
	return res, nil
}

// WaitForFill polls until the order is terminal or the fill timeout passes.
func (s *Session) WaitForFill(ctx context.Context, res models.OrderResult) models.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitForFillLocked(ctx, res)
}

// waitForFillLocked never resubmits. On timeout the last seen state is kept
// with status UNKNOWN.
func (s *Session) waitForFillLocked(ctx context.Context, res models.OrderResult) models.OrderResult {
	if res.OrderID == "" {
		res.Status = models.OrderStatusUnknown
		return res
	}
	deadline := time.NewTimer(s.fillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			res.Status = models.OrderStatusUnknown
			res.Message = "fill confirmation interrupted"
			return res
		case <-deadline.C:
			s.logger.Warn().
				Str("order_id", res.OrderID).
				Str("symbol", res.Symbol).
				Dur("timeout", s.fillTimeout).
				Msg("Fill not confirmed before timeout")
			res.Status = models.OrderStatusUnknown
			res.Message = apperrors.ErrFillTimeout.Error()
			return res
		case <-ticker.C:
			latest, err := s.broker.OrderStatus(ctx, res.OrderID)
			if err != nil {
				s.logger.Debug().Err(err).Str("order_id", res.OrderID).Msg("Order status poll failed")
				continue
			}
			if latest.Symbol == "" {
				latest.Symbol = res.Symbol
			}
			res = latest
			if res.Status.Terminal() {
				return res
			}
		}
	}
}
