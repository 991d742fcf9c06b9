package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robotrader/internal/models"
	"robotrader/internal/resilience"
)

func testEmail(send sendFunc) *EmailNotifier {
	policy := resilience.NotifyPolicy(2, time.Millisecond, zerolog.Nop())
	e := NewEmailNotifier(EmailConfig{
		Enabled:    true,
		SMTPHost:   "smtp.example.com",
		SMTPPort:   465,
		Username:   "bot@example.com",
		Password:   "secret",
		Recipients: []string{"me@example.com"},
	}, policy, nil, zerolog.Nop())
	e.send = send
	return e
}

func TestEmailNotifier_Send(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	e := testEmail(func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		assert.Equal(t, "bot@example.com", from)
		return nil
	})

	ok := e.Send(context.Background(), "Hello", "line one\nline two", nil)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com:465", gotAddr)
	assert.Equal(t, []string{"me@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Hello\r\n")
	assert.Contains(t, string(gotMsg), "line one\r\nline two")
}

func TestEmailNotifier_FailureIsNotFatal(t *testing.T) {
	calls := 0
	e := testEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		calls++
		return errors.New("connection refused")
	})

	assert.False(t, e.Send(context.Background(), "s", "b", []string{"x@example.com"}))
	assert.Equal(t, 2, calls)
}

func TestEmailNotifier_PanicIsContained(t *testing.T) {
	e := testEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		panic("boom")
	})
	assert.False(t, e.Send(context.Background(), "s", "b", nil))
}

func TestEmailNotifier_NoRecipients(t *testing.T) {
	e := testEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("should not send")
		return nil
	})
	e.cfg.Recipients = nil
	assert.False(t, e.Send(context.Background(), "s", "b", nil))
}

func TestMultiNotifier(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminalNotifier(&buf, false)
	failing := testEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("down")
	})
	m := NewMultiNotifier(failing, term)
	assert.True(t, m.Send(context.Background(), "Trading Alert: BUY AAPL", "ALERT: BUY AAPL", nil))
	assert.Contains(t, buf.String(), "Trading Alert: BUY AAPL")
	assert.Contains(t, buf.String(), "    ALERT: BUY AAPL")
	assert.True(t, NewNoOpNotifier(zerolog.Nop()).Send(context.Background(), "s", "b", nil))
}

func TestRenderSessionSummary(t *testing.T) {
	s := SessionSummary{
		SessionType: models.SessionMorning,
		StartedAt:   time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		TotalTrades: 2,
		Purchased:   []TradeLine{{Symbol: "AAPL", Value: decimal.RequireFromString("1500"), Detail: "1Y: 25.0%"}},
		Sold:        []TradeLine{{Symbol: "TLT", Value: decimal.RequireFromString("1650")}},
		MoneySpent:  decimal.RequireFromString("1500"),
		MoneyEarned: decimal.RequireFromString("1650"),
		Workflows: []WorkflowLine{
			{Class: models.AssetClassEquity, Status: "FAILED", Error: "boom"},
			{Class: models.AssetClassFixedIncome, Status: "SUCCESS", Trades: 1},
		},
		NextSession: "15:30 America/New_York",
	}
	subject, body := RenderSessionSummary(s)
	assert.Equal(t, "🤖 Trading Summary - MORNING Session", subject)
	assert.Contains(t, body, "Total Trades: 2")
	assert.Contains(t, body, "Money Spent: $1,500.00")
	assert.Contains(t, body, "Net Profit/Loss: $150.00 (+10.0%)")
	assert.Contains(t, body, "• AAPL: $1,500.00 (1Y: 25.0%)")
	assert.Contains(t, body, "equity: FAILED (boom)")
	assert.Contains(t, body, "bonds: SUCCESS (1 trades)")
	assert.Contains(t, body, "Next trading session will be at 15:30 America/New_York")
}

func TestRenderSessionSummary_NothingSpent(t *testing.T) {
	s := SessionSummary{SessionType: models.SessionAfternoon, MoneyEarned: decimal.NewFromInt(200)}
	assert.True(t, s.ProfitPercent().IsZero())
	_, body := RenderSessionSummary(s)
	assert.Contains(t, body, "Net Profit/Loss: $200.00 (+0.0%)")
	assert.Contains(t, body, "• No stocks purchased")
	assert.Contains(t, body, "⏰ Time: N/A")
}

func TestRenderTradeAlert(t *testing.T) {
	subject, body := RenderTradeAlert(models.OrderSideBuy, "ETH-USD", "3 buy votes", decimal.RequireFromString("99.5"))
	assert.Equal(t, "Trading Alert: BUY ETH-USD", subject)
	assert.True(t, strings.HasPrefix(body, "ALERT: BUY ETH-USD\n"))
	assert.Contains(t, body, "Trade Value: $99.50")
}
