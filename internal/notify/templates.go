package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"robotrader/internal/models"
	"robotrader/pkg/utils"
)

// TradeLine is one bought or sold entry in a summary.
type TradeLine struct {
	Symbol string
	Value  decimal.Decimal
	Detail string
}

// WorkflowLine reports one asset-class workflow outcome.
type WorkflowLine struct {
	Class  models.AssetClass
	Status string
	Trades int
	Error  string
}

// SessionSummary is the end-of-session report.
type SessionSummary struct {
	SessionType  models.SessionType
	StartedAt    time.Time
	TotalTrades  int
	Purchased    []TradeLine
	Sold         []TradeLine
	MoneySpent   decimal.Decimal
	MoneyEarned  decimal.Decimal
	StopLossExit int
	Workflows    []WorkflowLine
	NextSession  string
	Interrupted  bool
}

// NetProfit is earned minus spent.
func (s SessionSummary) NetProfit() decimal.Decimal {
	return s.MoneyEarned.Sub(s.MoneySpent)
}

// ProfitPercent is net profit over money spent, or zero when nothing was spent.
func (s SessionSummary) ProfitPercent() decimal.Decimal {
	if !s.MoneySpent.IsPositive() {
		return decimal.Zero
	}
	return s.NetProfit().Div(s.MoneySpent).Mul(decimal.NewFromInt(100))
}

// RenderSessionSummary builds the summary subject and plain-text body.
func RenderSessionSummary(s SessionSummary) (string, string) {
	subject := fmt.Sprintf("🤖 Trading Summary - %s Session", s.SessionType)
	if s.Interrupted {
		subject += " (interrupted)"
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 30)
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString("\n")
	}

	line("🤖 ROBOTRADING SESSION SUMMARY")
	line(strings.Repeat("=", 50))
	line("")
	line("📅 Session: %s TRADING", s.SessionType)
	if s.StartedAt.IsZero() {
		line("⏰ Time: N/A")
	} else {
		line("⏰ Time: %s", s.StartedAt.Format("2006-01-02 15:04:05"))
	}
	line("")
	line("📊 TRADING ACTIVITY")
	line(rule)
	line("Total Trades: %d", s.TotalTrades)
	line("Stocks Purchased: %d", len(s.Purchased))
	line("Stocks Sold: %d", len(s.Sold))
	if s.StopLossExit > 0 {
		line("Stop-Loss Exits: %d", s.StopLossExit)
	}
	line("")
	line("💰 FINANCIAL SUMMARY")
	line(rule)
	line("Money Spent: %s", utils.FormatUSD(s.MoneySpent))
	line("Money Earned: %s", utils.FormatUSD(s.MoneyEarned))
	pct := s.ProfitPercent().Round(1)
	sign := ""
	if !pct.IsNegative() {
		sign = "+"
	}
	line("Net Profit/Loss: %s (%s%s%%)", utils.FormatUSD(s.NetProfit()), sign, pct.StringFixed(1))
	line("")

	writeTrades := func(title, empty string, trades []TradeLine) {
		line(title)
		line(rule)
		if len(trades) == 0 {
			line("• %s", empty)
		}
		for _, t := range trades {
			if t.Detail != "" {
				line("• %s: %s (%s)", t.Symbol, utils.FormatUSD(t.Value), t.Detail)
			} else {
				line("• %s: %s", t.Symbol, utils.FormatUSD(t.Value))
			}
		}
		line("")
	}
	writeTrades("📈 STOCKS PURCHASED", "No stocks purchased", s.Purchased)
	writeTrades("📉 STOCKS SOLD", "No stocks sold", s.Sold)

	if len(s.Workflows) > 0 {
		line("🧭 WORKFLOWS")
		line(rule)
		for _, w := range s.Workflows {
			if w.Error != "" {
				line("%s: %s (%s)", w.Class.Label(), w.Status, w.Error)
			} else {
				line("%s: %s (%d trades)", w.Class.Label(), w.Status, w.Trades)
			}
		}
		line("")
	}

	if s.NextSession != "" {
		line("🎯 NEXT SESSION")
		line(rule)
		line("Next trading session will be at %s", s.NextSession)
		line("")
	}
	line("---")
	line("🤖 Robotrading Bot - Automated Trading System")
	return subject, sb.String()
}

// RenderTradeAlert builds a per-trade alert for a signal-driven order.
func RenderTradeAlert(action models.OrderSide, symbol, reason string, value decimal.Decimal) (string, string) {
	subject := fmt.Sprintf("Trading Alert: %s %s", action, symbol)
	var sb strings.Builder
	fmt.Fprintf(&sb, "ALERT: %s %s\n", action, symbol)
	fmt.Fprintf(&sb, "Trade Value: %s\n", utils.FormatUSD(value))
	if reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", reason)
	}
	return subject, sb.String()
}
