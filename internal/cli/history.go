package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"robotrader/internal/models"
	"robotrader/internal/store"
	"robotrader/pkg/utils"
)

type sessionRow struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	StartedAt   time.Time `json:"started_at"`
	TotalTrades int       `json:"total_trades"`
	MoneySpent  string    `json:"money_spent"`
	MoneyEarned string    `json:"money_earned"`
	NetProfit   string    `json:"net_profit"`
}

func newHistoryCmd(app *App) *cobra.Command {
	var (
		sessionType string
		days        int
		limit       int
		trades      bool
		symbol      string
		sessionID   string
		stopLoss    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past sessions or trades",
		Example: `  robotrader history --days 7
  robotrader history --trades --symbol AAPL
  robotrader history --trades --stop-loss`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := store.NewSQLiteStore(app.Config.Store.Path)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()
			ctx := cmd.Context()

			if trades || sessionID != "" || symbol != "" {
				filter := store.TradeFilter{SessionID: sessionID, Symbol: strings.ToUpper(symbol), Limit: limit}
				if cmd.Flags().Changed("stop-loss") {
					filter.StopLoss = &stopLoss
				}
				recs, err := st.GetTrades(ctx, filter)
				if err != nil {
					return err
				}
				return renderTrades(output, recs, app.Config.Schedule.Timezone)
			}

			filter := store.SessionFilter{Limit: limit}
			if sessionType != "" {
				filter.SessionType = models.SessionType(strings.ToUpper(sessionType))
			}
			if days > 0 {
				filter.Since = time.Now().AddDate(0, 0, -days)
			}
			recs, err := st.ListSessions(ctx, filter)
			if err != nil {
				return err
			}
			return renderSessions(output, recs, app.Config.Schedule.Timezone)
		},
	}

	cmd.Flags().StringVar(&sessionType, "type", "", "session type (morning|afternoon|intraday)")
	cmd.Flags().IntVar(&days, "days", 0, "only sessions from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().BoolVar(&trades, "trades", false, "list trades instead of sessions")
	cmd.Flags().StringVar(&symbol, "symbol", "", "filter trades by symbol")
	cmd.Flags().StringVar(&sessionID, "session", "", "filter trades by session ID")
	cmd.Flags().BoolVar(&stopLoss, "stop-loss", false, "only stop-loss trades (--stop-loss=false excludes them)")
	return cmd
}

func renderSessions(output *Output, recs []models.SessionRecord, tz string) error {
	if output.IsJSON() {
		rows := make([]sessionRow, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, sessionRow{
				ID:          r.ID,
				Type:        string(r.SessionType),
				StartedAt:   r.StartedAt,
				TotalTrades: r.TotalTrades,
				MoneySpent:  r.MoneySpent.StringFixed(2),
				MoneyEarned: r.MoneyEarned.StringFixed(2),
				NetProfit:   r.NetProfit.StringFixed(2),
			})
		}
		return output.JSON(rows)
	}
	if len(recs) == 0 {
		output.Dim("No sessions recorded")
		return nil
	}

	loc := location(tz)
	table := NewTable(output, "STARTED", "TYPE", "TRADES", "SPENT", "EARNED", "NET", "ID")
	for _, r := range recs {
		net, _ := r.NetProfit.Float64()
		table.AddRow(
			FormatDateTime(r.StartedAt, loc),
			string(r.SessionType),
			fmt.Sprint(r.TotalTrades),
			utils.FormatUSD(r.MoneySpent),
			utils.FormatUSD(r.MoneyEarned),
			output.ColoredString(output.PnLColor(net), utils.FormatPnL(r.NetProfit)),
			TruncateString(r.ID, 8),
		)
	}
	table.Render()
	return nil
}

func renderTrades(output *Output, recs []models.TradeRecord, tz string) error {
	if output.IsJSON() {
		rows := make([]tradeView, 0, len(recs))
		for _, t := range recs {
			rows = append(rows, newTradeView(t))
		}
		return output.JSON(rows)
	}
	if len(recs) == 0 {
		output.Dim("No trades recorded")
		return nil
	}

	loc := location(tz)
	table := NewTable(output, "TIME", "SYMBOL", "CLASS", "SIDE", "QTY", "PRICE", "VALUE", "")
	for _, t := range recs {
		side := string(t.Action)
		if t.Action == models.OrderSideBuy {
			side = output.ColoredString(ColorGreen, side)
		} else {
			side = output.ColoredString(ColorRed, side)
		}
		flag := ""
		if t.StopLoss {
			flag = output.ColoredString(ColorYellow, "stop-loss")
		}
		table.AddRow(
			FormatDateTime(t.CreatedAt, loc),
			t.Symbol,
			t.AssetClass.Label(),
			side,
			utils.FormatQuantity(t.Quantity),
			utils.FormatUSD(t.Price),
			utils.FormatUSD(t.Value),
			flag,
		)
	}
	table.Render()
	return nil
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
