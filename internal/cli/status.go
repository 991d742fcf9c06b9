package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"robotrader/pkg/utils"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show portfolio allocation, stop-loss trackers and schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			rt, err := app.runtime(ctx, output, false)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.Engine.Update(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("Could not refresh trackers")
			}
			doc := rt.StatusDocument()
			if output.IsJSON() {
				return output.JSON(doc)
			}
			printStatus(output, doc, rt.Scheduler.Hours())
			return nil
		},
	}
}

func printStatus(output *Output, doc StatusDocument, hours utils.MarketHours) {
	connected := output.ColoredString(ColorGreen, "connected")
	if !doc.Connected {
		connected = output.ColoredString(ColorRed, "disconnected")
	}
	output.Bold("Robotrader %s", strings.ToUpper(doc.Mode))
	output.Printf("  Broker:      %s (%s)\n", doc.Broker, connected)
	output.Printf("  Portfolio:   %s\n", utils.FormatUSDFloat(doc.Portfolio.TotalValue))
	output.Println()

	table := NewTable(output, "CLASS", "TARGET", "CURRENT", "VALUE", "AVAILABLE", "HOLDINGS")
	for _, c := range doc.Portfolio.Classes {
		table.AddRow(
			c.Class,
			FormatFraction(c.Target),
			FormatFraction(c.Current),
			utils.FormatUSDFloat(c.CurrentValue),
			utils.FormatUSDFloat(c.AvailablePower),
			fmt.Sprint(c.Holdings),
		)
	}
	table.Render()
	output.Println()

	output.Bold("Stop-Loss Trackers")
	if len(doc.Trackers) == 0 {
		output.Dim("  No open positions tracked")
	} else {
		renderTrackers(output, doc.Trackers)
	}
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Next session: %s\n", doc.NextSession)
	for _, e := range doc.Schedule {
		output.Printf("  %-20s %s\n", e.Name, FormatDateTime(e.Next, hours.Location))
	}
}

func renderTrackers(output *Output, trackers []TrackerView) {
	table := NewTable(output, "SYMBOL", "CLASS", "QTY", "ENTRY", "HIGH", "PRICE", "STOP", "P&L")
	for _, t := range trackers {
		pnl := t.PnLPct
		table.AddRow(
			t.Symbol,
			t.Class,
			utils.FormatQuantity(t.Quantity),
			utils.FormatUSDFloat(t.EntryPrice),
			utils.FormatUSDFloat(t.HighPrice),
			utils.FormatUSDFloat(t.Price),
			utils.FormatUSDFloat(t.Stop),
			output.ColoredString(output.PnLColor(pnl), utils.FormatPercent(pnl)),
		)
	}
	table.Render()
}
