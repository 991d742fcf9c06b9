package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
	"robotrader/internal/portfolio"
	"robotrader/internal/signals"
	"robotrader/internal/stoploss"
)

type fakeBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]float64
	prices    map[string]float64
	reject    map[string]bool
	noFill    map[string]bool
	down      map[string]bool
	snapErr   error
	orders    []string
	calls     *[]string
}

func newFakeBroker(cash float64, prices map[string]float64) *fakeBroker {
	return &fakeBroker{cash: cash, positions: map[string]float64{}, prices: prices}
}

func (b *fakeBroker) Snapshot(context.Context) (models.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls != nil {
		*b.calls = append(*b.calls, "snapshot")
	}
	if b.snapErr != nil {
		return models.AccountSnapshot{}, b.snapErr
	}
	snap := models.AccountSnapshot{TotalValue: b.cash}
	for sym, qty := range b.positions {
		mv := qty * b.prices[sym]
		snap.TotalValue += mv
		snap.Positions = append(snap.Positions, models.BrokerPosition{Symbol: sym, Quantity: qty, MarketValue: mv, AverageCost: b.prices[sym]})
	}
	return snap, nil
}

func (b *fakeBroker) SubmitMarketOrder(_ context.Context, symbol string, side models.OrderSide, qty float64) (models.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, fmt.Sprintf("%s %s %.0f", side, symbol, qty))
	if b.calls != nil {
		*b.calls = append(*b.calls, "order "+symbol)
	}
	if b.down[symbol] {
		return models.OrderResult{}, apperrors.ErrConnectionFailed
	}
	if b.reject[symbol] {
		return models.OrderResult{Symbol: symbol, Side: side, Status: models.OrderStatusRejected},
			apperrors.NewOrderError("", symbol, string(side), "rejected", apperrors.ErrInsufficientFunds)
	}
	if side == models.OrderSideSell && b.noFill[symbol] {
		return models.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(b.orders)), Symbol: symbol, Side: side, Status: models.OrderStatusSubmitted, Quantity: qty}, nil
	}
	price := b.prices[symbol]
	if side == models.OrderSideBuy {
		b.cash -= qty * price
		b.positions[symbol] += qty
	} else {
		b.cash += qty * price
		b.positions[symbol] -= qty
		if b.positions[symbol] <= 0 {
			delete(b.positions, symbol)
		}
	}
	return models.OrderResult{
		OrderID:   fmt.Sprintf("ord-%d", len(b.orders)),
		Symbol:    symbol,
		Side:      side,
		Status:    models.OrderStatusFilled,
		Quantity:  qty,
		FilledQty: qty,
		FillPrice: price,
	}, nil
}

type fakeData struct {
	prices map[string]float64
	growth map[string]float64
	err    map[string]error
}

func (d *fakeData) DailyBars(_ context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := d.err[symbol]; err != nil {
		return nil, err
	}
	last, ok := d.prices[symbol]
	if !ok {
		return nil, apperrors.ErrNoData
	}
	g := d.growth[symbol]
	first := last / (1 + g)
	bars := make([]models.Candle, 0, 300)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 300; i++ {
		c := first + (last-first)*float64(i)/299
		bars = append(bars, models.Candle{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	return bars, nil
}

func (d *fakeData) LastPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := d.prices[symbol]
	if !ok {
		return 0, apperrors.ErrNoData
	}
	return p, nil
}

// scriptedGen returns a fixed signal per symbol and HOLD otherwise.
type scriptedGen struct {
	signals map[string]signals.Signal
	onCall  func(symbol string)
}

func (g *scriptedGen) Name() string { return "scripted" }

func (g *scriptedGen) MinBars() int { return 1 }

func (g *scriptedGen) Generate(symbol string, _ []models.Candle) signals.Result {
	if g.onCall != nil {
		g.onCall(symbol)
	}
	sig, ok := g.signals[symbol]
	if !ok {
		sig = signals.Hold
	}
	return signals.Result{Symbol: symbol, Signal: sig, Reason: "scripted " + string(sig)}
}

type panicGen struct{}

func (panicGen) Name() string { return "panic" }

func (panicGen) MinBars() int { return 1 }

func (panicGen) Generate(string, []models.Candle) signals.Result { panic("indicator blew up") }

type sentMail struct {
	subject string
	body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) Send(_ context.Context, subject, body string, _ []string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{subject, body})
	return true
}

func (n *recordingNotifier) summaries() []sentMail {
	var out []sentMail
	for _, m := range n.sent {
		if strings.Contains(m.subject, "Trading Summary") {
			out = append(out, m)
		}
	}
	return out
}

type fakeStopLoss struct {
	execs []stoploss.Execution
	err   error
	calls *[]string
	onRun func()
}

func (f *fakeStopLoss) RunCycle(context.Context) ([]stoploss.Execution, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "stoploss")
	}
	if f.onRun != nil {
		f.onRun()
	}
	return f.execs, f.err
}

type memStore struct {
	sessions []models.SessionRecord
	trades   [][]models.TradeRecord
}

func (m *memStore) SaveSession(_ context.Context, s models.SessionRecord, trades []models.TradeRecord) error {
	m.sessions = append(m.sessions, s)
	m.trades = append(m.trades, trades)
	return nil
}

type harness struct {
	broker   *fakeBroker
	data     *fakeData
	notifier *recordingNotifier
	store    *memStore
	cfg      Config
	gens     map[models.AssetClass]signals.Generator
	opts     []Option
}

func newHarness() *harness {
	prices := map[string]float64{
		"AAPL": 100, "MSFT": 200, "NVDA": 50,
		"TLT": 90, "IEF": 95,
		"BTC-USD": 500, "ETH-USD": 300,
	}
	return &harness{
		broker:   newFakeBroker(100000, prices),
		data:     &fakeData{prices: prices, growth: map[string]float64{}, err: map[string]error{}},
		notifier: &recordingNotifier{},
		store:    &memStore{},
		cfg: Config{
			Symbols: SymbolsConfig{
				Equity: []string{"AAPL", "MSFT", "NVDA"},
				Bonds:  []string{"TLT", "IEF"},
				Crypto: []string{"BTC-USD", "ETH-USD"},
			},
			LookbackDays:  365,
			MaxEquityBuys: 5,
		},
		gens: map[models.AssetClass]signals.Generator{
			models.AssetClassEquity:      &scriptedGen{},
			models.AssetClassFixedIncome: &scriptedGen{},
			models.AssetClassCrypto:      &scriptedGen{},
		},
	}
}

func (h *harness) build() *Orchestrator {
	ledger := portfolio.NewLedger(portfolio.DefaultAllocation(), portfolio.DefaultClassifier(zerolog.Nop()))
	opts := []Option{
		WithNotifier(h.notifier),
		WithStore(h.store),
		WithClock(func() time.Time { return time.Date(2025, 3, 3, 9, 35, 0, 0, time.UTC) }),
		WithNextSession(func(time.Time) string { return "15:30 EST" }),
	}
	for class, g := range h.gens {
		opts = append(opts, WithGenerator(class, g))
	}
	opts = append(opts, h.opts...)
	return New(h.cfg, h.broker, h.data, ledger, zerolog.Nop(), opts...)
}

func (h *harness) script(class models.AssetClass, sigs map[string]signals.Signal) {
	h.gens[class] = &scriptedGen{signals: sigs}
}

func TestRunSession_WorkflowFailureIsolated(t *testing.T) {
	h := newHarness()
	h.gens[models.AssetClassEquity] = panicGen{}
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"TLT": signals.Buy})
	h.script(models.AssetClassCrypto, map[string]signals.Signal{"BTC-USD": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)

	eq, _ := report.Workflow(models.AssetClassEquity)
	assert.Equal(t, StatusFailed, eq.Status)
	assert.Contains(t, eq.Err.Error(), "indicator blew up")

	bonds, _ := report.Workflow(models.AssetClassFixedIncome)
	assert.Equal(t, StatusSuccess, bonds.Status)
	assert.Len(t, bonds.Trades, 1)

	crypto, _ := report.Workflow(models.AssetClassCrypto)
	assert.Equal(t, StatusSuccess, crypto.Status)
	assert.Len(t, crypto.Trades, 1)

	require.Len(t, h.notifier.summaries(), 1)
	body := h.notifier.summaries()[0].body
	assert.Contains(t, body, "equity: FAILED (panic: indicator blew up)")
	assert.Contains(t, body, "bonds: SUCCESS (1 trades)")
	assert.Contains(t, body, "Next trading session will be at 15:30 EST")
	assert.True(t, report.Notified)

	require.Len(t, h.store.sessions, 1)
	assert.Equal(t, 2, h.store.sessions[0].TotalTrades)
	assert.Len(t, h.store.trades[0], 2)
}

func TestRunSession_StopLossRunsFirstAndBlocksRebuy(t *testing.T) {
	h := newHarness()
	h.cfg.TradeAlerts = true
	var calls []string
	h.broker.calls = &calls
	h.broker.positions["AAPL"] = 10
	sl := &fakeStopLoss{calls: &calls, execs: []stoploss.Execution{{
		Trigger: stoploss.Trigger{Symbol: "AAPL", AssetClass: models.AssetClassEquity, Quantity: 10, Price: 100, Reason: "trailing stop"},
		Result:  models.OrderResult{OrderID: "sl-1", Symbol: "AAPL", Side: models.OrderSideSell, Status: models.OrderStatusFilled, FilledQty: 10, FillPrice: 95},
	}}}
	h.opts = append(h.opts, WithStopLoss(sl))
	h.script(models.AssetClassEquity, map[string]signals.Signal{"AAPL": signals.Buy, "MSFT": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "stoploss", calls[0])
	assert.Equal(t, "snapshot", calls[1])
	assert.NotContains(t, h.broker.orders, "BUY AAPL 10")
	assert.Contains(t, h.broker.orders, "BUY MSFT 10")

	require.NotEmpty(t, report.Trades)
	assert.True(t, report.Trades[0].StopLoss)
	assert.Equal(t, "950", report.Trades[0].Value.String())
	assert.Equal(t, 1, report.StopLossExits)
	assert.Empty(t, report.Sold)

	var alerts []string
	for _, m := range h.notifier.sent {
		if strings.HasPrefix(m.subject, "Trading Alert") {
			alerts = append(alerts, m.subject)
		}
	}
	assert.Equal(t, []string{"Trading Alert: BUY MSFT"}, alerts)
	assert.Contains(t, h.notifier.summaries()[0].body, "Stop-Loss Exits: 1")
}

func TestRunSession_SellSignalSellsFullHolding(t *testing.T) {
	h := newHarness()
	h.broker.positions["TLT"] = 5
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"TLT": signals.Sell, "IEF": signals.Sell})

	report, err := h.build().RunSession(context.Background(), models.SessionAfternoon)
	require.NoError(t, err)

	// IEF is not held, so its SELL is a no-op.
	assert.Equal(t, []string{"SELL TLT 5"}, h.broker.orders)
	require.Len(t, report.Sold, 1)
	assert.Equal(t, "TLT", report.Sold[0].Symbol)
	assert.Equal(t, "450", report.Record.MoneyEarned.String())
	assert.True(t, report.Record.NetProfit.Equal(report.Record.MoneyEarned))
}

func TestRunSession_SkipsBuyOfStopLossSymbolInSameClass(t *testing.T) {
	h := newHarness()
	h.broker.positions["IEF"] = 3
	sl := &fakeStopLoss{execs: []stoploss.Execution{{
		Trigger: stoploss.Trigger{Symbol: "IEF", AssetClass: models.AssetClassFixedIncome, Quantity: 3, Price: 95},
		Result:  models.OrderResult{Status: models.OrderStatusUnknown},
	}}}
	h.opts = append(h.opts, WithStopLoss(sl))
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"IEF": signals.Buy, "TLT": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"BUY TLT 10"}, h.broker.orders)
	// Unconfirmed fills are valued at the trigger price.
	assert.Equal(t, "285", report.Trades[0].Value.String())
}

func TestRunSession_AllocationBlocksBuys(t *testing.T) {
	h := newHarness()
	h.broker.cash = 30000
	h.broker.positions["NVDA"] = 1400 // 70000 of 100000 in equity
	h.script(models.AssetClassEquity, map[string]signals.Signal{"AAPL": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.Empty(t, h.broker.orders)
	eq, _ := report.Workflow(models.AssetClassEquity)
	assert.Equal(t, StatusSuccess, eq.Status)
	assert.Empty(t, eq.Trades)
}

func TestRunSession_EquityBuysLimitedToTopReturns(t *testing.T) {
	h := newHarness()
	h.cfg.MaxEquityBuys = 2
	h.data.growth = map[string]float64{"AAPL": 0.05, "MSFT": 0.40, "NVDA": 0.90}
	h.script(models.AssetClassEquity, map[string]signals.Signal{
		"AAPL": signals.Buy, "MSFT": signals.Buy, "NVDA": signals.Buy,
	})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"BUY NVDA 10", "BUY MSFT 10"}, h.broker.orders)
	require.Len(t, report.Purchased, 2)
	assert.Equal(t, "1Y: +90.00%", report.Purchased[0].Detail)
}

func TestRunSession_RejectionSkipsSymbol(t *testing.T) {
	h := newHarness()
	h.broker.reject = map[string]bool{"BTC-USD": true}
	h.script(models.AssetClassCrypto, map[string]signals.Signal{"BTC-USD": signals.Buy, "ETH-USD": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	crypto, _ := report.Workflow(models.AssetClassCrypto)
	assert.Equal(t, StatusSuccess, crypto.Status)
	require.Len(t, crypto.Trades, 1)
	assert.Equal(t, "ETH-USD", crypto.Trades[0].Symbol)
}

func TestRunSession_BrokerFailureFailsOnlyThatWorkflow(t *testing.T) {
	h := newHarness()
	h.broker.down = map[string]bool{"AAPL": true}
	h.script(models.AssetClassEquity, map[string]signals.Signal{"AAPL": signals.Buy})
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"TLT": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	eq, _ := report.Workflow(models.AssetClassEquity)
	assert.Equal(t, StatusFailed, eq.Status)
	assert.ErrorIs(t, eq.Err, apperrors.ErrConnectionFailed)
	bonds, _ := report.Workflow(models.AssetClassFixedIncome)
	assert.Equal(t, StatusSuccess, bonds.Status)
	assert.Len(t, bonds.Trades, 1)
}

func TestRunSession_MissingDataIsSkipped(t *testing.T) {
	h := newHarness()
	h.data.err["AAPL"] = apperrors.ErrNoData
	h.script(models.AssetClassEquity, map[string]signals.Signal{"AAPL": signals.Buy, "MSFT": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	eq, _ := report.Workflow(models.AssetClassEquity)
	assert.Equal(t, StatusSuccess, eq.Status)
	assert.Equal(t, []string{"BUY MSFT 10"}, h.broker.orders)
}

func TestRunSession_AllDataFailuresFailWorkflow(t *testing.T) {
	h := newHarness()
	boom := errors.New("upstream 500")
	for _, s := range h.cfg.Symbols.Crypto {
		h.data.err[s] = boom
	}

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	crypto, _ := report.Workflow(models.AssetClassCrypto)
	assert.Equal(t, StatusFailed, crypto.Status)
	assert.ErrorIs(t, crypto.Err, boom)
}

func TestRunSession_SnapshotFailureStillSummarizes(t *testing.T) {
	h := newHarness()
	h.broker.snapErr = apperrors.ErrBrokerDisconnected

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	for _, w := range report.Workflows {
		assert.Equal(t, StatusFailed, w.Status, w.Class)
	}
	assert.Len(t, h.notifier.summaries(), 1)
	assert.Empty(t, h.broker.orders)
}

func TestRunSession_StopRequestSkipsRemainingWorkflows(t *testing.T) {
	h := newHarness()
	var o *Orchestrator
	h.gens[models.AssetClassEquity] = &scriptedGen{
		signals: map[string]signals.Signal{"MSFT": signals.Buy},
		onCall:  func(string) { o.RequestStop() },
	}
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"TLT": signals.Buy})
	o = h.build()

	report, err := o.RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)

	eq, _ := report.Workflow(models.AssetClassEquity)
	assert.Equal(t, StatusSuccess, eq.Status)
	assert.Len(t, eq.Trades, 1)
	bonds, _ := report.Workflow(models.AssetClassFixedIncome)
	assert.Equal(t, StatusSkipped, bonds.Status)
	assert.True(t, report.Interrupted)

	summaries := h.notifier.summaries()
	require.Len(t, summaries, 1)
	assert.Contains(t, summaries[0].subject, "(interrupted)")

	_, err = o.RunSession(context.Background(), models.SessionAfternoon)
	assert.Error(t, err)
}

func TestStatus_ReflectsLastSession(t *testing.T) {
	h := newHarness()
	h.script(models.AssetClassEquity, map[string]signals.Signal{"AAPL": signals.Buy})
	o := h.build()
	assert.Nil(t, o.Status().LastSession)

	_, err := o.RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)

	v := o.Status()
	require.NotNil(t, v.LastSession)
	assert.Equal(t, "MORNING", v.LastSession.Type)
	assert.Equal(t, 1, v.LastSession.TotalTrades)
	assert.Equal(t, "-1000.00", v.LastSession.NetProfit)
	assert.Equal(t, StatusSuccess, v.LastSession.Workflows["equity"])
	require.Len(t, v.Classes, 3)
	assert.InDelta(t, 100000, v.TotalValue, 0.01)
}

func TestSymbolsConfig_SetDefaults(t *testing.T) {
	var s SymbolsConfig
	s.SetDefaults()
	assert.Equal(t, DefaultEquitySymbols, s.Equity)
	assert.Equal(t, DefaultBondSymbols, s.Bonds)
	assert.Equal(t, DefaultCryptoSymbols, s.Crypto)

	custom := SymbolsConfig{Equity: []string{"AAPL"}}
	custom.SetDefaults()
	assert.Equal(t, []string{"AAPL"}, custom.Equity)
}

func TestRecordExits_PersistsIntradaySession(t *testing.T) {
	h := newHarness()
	o := h.build()

	o.RecordExits(context.Background(), []stoploss.Execution{
		{
			Trigger: stoploss.Trigger{Symbol: "NVDA", AssetClass: models.AssetClassEquity, Quantity: 4, Price: 47.5},
			Result:  models.OrderResult{OrderID: "ord-9", Status: models.OrderStatusSubmitted},
		},
	})

	require.Len(t, h.store.sessions, 1)
	rec := h.store.sessions[0]
	assert.Equal(t, models.SessionIntraday, rec.SessionType)
	assert.Equal(t, 1, rec.TotalTrades)
	assert.Equal(t, "190.00", rec.MoneyEarned.StringFixed(2))
	assert.True(t, rec.NetProfit.Equal(rec.MoneyEarned))

	require.Len(t, h.store.trades[0], 1)
	tr := h.store.trades[0][0]
	assert.True(t, tr.StopLoss)
	assert.Equal(t, rec.ID, tr.SessionID)
	assert.Equal(t, "ord-9", tr.OrderID)
	assert.Empty(t, h.notifier.summaries())

	o.RecordExits(context.Background(), nil)
	assert.Len(t, h.store.sessions, 1)
}

func TestRunSession_CryptoSellMatchesBrokerPairForm(t *testing.T) {
	h := newHarness()
	h.broker.prices["BTCUSD"] = 500
	h.broker.positions["BTCUSD"] = 2
	h.script(models.AssetClassCrypto, map[string]signals.Signal{"BTC-USD": signals.Sell})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELL BTC-USD 2"}, h.broker.orders)
	require.Len(t, report.Sold, 1)
	assert.Equal(t, "BTC-USD", report.Sold[0].Symbol)
}

func TestRunSession_CryptoStopLossExitBlocksRebuy(t *testing.T) {
	h := newHarness()
	h.broker.prices["BTCUSD"] = 500
	sl := &fakeStopLoss{execs: []stoploss.Execution{{
		Trigger: stoploss.Trigger{Symbol: "BTCUSD", AssetClass: models.AssetClassCrypto, Quantity: 2, Price: 480},
		Result:  models.OrderResult{OrderID: "sl-1", Status: models.OrderStatusFilled, FilledQty: 2, FillPrice: 480},
	}}}
	h.opts = append(h.opts, WithStopLoss(sl))
	h.script(models.AssetClassCrypto, map[string]signals.Signal{"BTC-USD": signals.Buy, "ETH-USD": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(h.broker.orders, ","), "BTC-USD")
	assert.Contains(t, h.broker.orders, "BUY ETH-USD 3")
	assert.Equal(t, 1, report.StopLossExits)
}

func TestRunSession_UnfilledSellDoesNotBlockBuy(t *testing.T) {
	h := newHarness()
	// TLT is listed in both universes so a SELL and a BUY meet in one session.
	h.cfg.Symbols.Equity = []string{"TLT"}
	h.broker.positions["TLT"] = 5
	h.broker.noFill = map[string]bool{"TLT": true}
	h.script(models.AssetClassEquity, map[string]signals.Signal{"TLT": signals.Sell})
	h.script(models.AssetClassFixedIncome, map[string]signals.Signal{"TLT": signals.Buy})

	report, err := h.build().RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELL TLT 5", "BUY TLT 10"}, h.broker.orders)
	assert.Empty(t, report.Sold)
	require.Len(t, report.Purchased, 1)
}

func TestTryExclusive_HeldDuringSession(t *testing.T) {
	h := newHarness()
	var o *Orchestrator
	inSession := false
	sl := &fakeStopLoss{onRun: func() {
		release, ok := o.TryExclusive()
		if ok {
			release()
		}
		inSession = !ok
	}}
	h.opts = append(h.opts, WithStopLoss(sl))
	o = h.build()

	_, err := o.RunSession(context.Background(), models.SessionMorning)
	require.NoError(t, err)
	assert.True(t, inSession, "session lock must be held while the session trades")

	release, ok := o.TryExclusive()
	require.True(t, ok)
	_, ok = o.TryExclusive()
	assert.False(t, ok)
	release()
	release, ok = o.TryExclusive()
	require.True(t, ok)
	release()
}
