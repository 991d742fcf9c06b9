package cli

import (
	"github.com/spf13/cobra"

	"robotrader/internal/models"
	"robotrader/internal/session"
	"robotrader/pkg/utils"
)

// sessionView is the JSON form of one completed session.
type sessionView struct {
	*session.LastSessionView
	MoneySpent  string      `json:"money_spent"`
	MoneyEarned string      `json:"money_earned"`
	Notified    bool        `json:"notified"`
	Trades      []tradeView `json:"trades"`
}

type tradeView struct {
	Symbol   string  `json:"symbol"`
	Class    string  `json:"class"`
	Action   string  `json:"action"`
	Quantity float64 `json:"quantity"`
	Price    string  `json:"price"`
	Value    string  `json:"value"`
	StopLoss bool    `json:"stop_loss"`
	OrderID  string  `json:"order_id,omitempty"`
}

func newTradeView(t models.TradeRecord) tradeView {
	return tradeView{
		Symbol:   t.Symbol,
		Class:    t.AssetClass.Label(),
		Action:   string(t.Action),
		Quantity: t.Quantity,
		Price:    t.Price.StringFixed(2),
		Value:    t.Value.StringFixed(2),
		StopLoss: t.StopLoss,
		OrderID:  t.OrderID,
	}
}

func newSessionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "session <morning|afternoon>",
		Short:     "Run one trading session now",
		Long:      "Run stop-loss exits and all asset-class workflows once, then send the summary.",
		Example:   "  robotrader session morning\n  robotrader session afternoon --json",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"morning", "afternoon"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			typ, err := parseSessionType(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := app.runtime(ctx, output, true)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			report := rt.RunSession(ctx, typ)
			if report == nil {
				output.Warning("Session was not run")
				return nil
			}
			view := rt.Orchestrator.Status().LastSession

			if output.IsJSON() {
				sv := sessionView{
					LastSessionView: view,
					MoneySpent:      report.Record.MoneySpent.StringFixed(2),
					MoneyEarned:     report.Record.MoneyEarned.StringFixed(2),
					Notified:        report.Notified,
					Trades:          make([]tradeView, 0, len(report.Trades)),
				}
				for _, t := range report.Trades {
					sv.Trades = append(sv.Trades, newTradeView(t))
				}
				return output.JSON(sv)
			}

			if !app.Config.Notifications.Terminal {
				output.Bold("%s session complete", typ)
				output.Printf("  Trades:    %d\n", report.Record.TotalTrades)
				output.Printf("  Net:       %s\n", utils.FormatUSD(report.Record.NetProfit))
			}
			for _, w := range report.Workflows {
				line := output.Status(w.Status) + " " + w.Class.Label()
				if w.Err != nil {
					line += ": " + w.Err.Error()
				}
				output.Println(line)
			}
			return nil
		},
	}
}
