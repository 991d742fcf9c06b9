package cli

import (
	"time"

	"github.com/spf13/cobra"

	"robotrader/internal/stoploss"
	"robotrader/pkg/utils"
)

type triggerView struct {
	Symbol      string  `json:"symbol"`
	Class       string  `json:"class"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Stop        float64 `json:"stop"`
	LossPercent float64 `json:"loss_percent"`
	Threshold   float64 `json:"threshold"`
	Reason      string  `json:"reason"`
	OrderID     string  `json:"order_id,omitempty"`
	Status      string  `json:"status,omitempty"`
}

func newTriggerView(t stoploss.Trigger) triggerView {
	return triggerView{
		Symbol:      t.Symbol,
		Class:       t.AssetClass.Label(),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Stop:        t.Stop,
		LossPercent: t.LossPercent,
		Threshold:   t.Threshold,
		Reason:      t.Reason,
	}
}

func newStopLossCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stoploss",
		Aliases: []string{"sl"},
		Short:   "Inspect and run stop-loss checks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked positions and their effective stops",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			rt, err := app.runtime(ctx, output, false)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.Engine.Update(ctx); err != nil {
				return err
			}
			doc := rt.StatusDocument()
			if output.IsJSON() {
				return output.JSON(doc.Trackers)
			}
			if len(doc.Trackers) == 0 {
				output.Dim("No open positions tracked")
				return nil
			}
			renderTrackers(output, doc.Trackers)
			now := time.Now()
			for _, t := range doc.Trackers {
				output.Dim("  %s held %s", t.Symbol, FormatDuration(now.Sub(t.EntryTime)))
			}
			return nil
		},
	})

	var execute bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Evaluate stop-loss triggers, optionally selling",
		Long: `Refresh trackers from the broker and report which positions breach their
stop. With --execute the triggered positions are sold at market and the
exits are recorded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			rt, err := app.runtime(ctx, output, execute)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.Engine.Update(ctx); err != nil {
				return err
			}
			triggers := rt.Engine.CheckAll(ctx)
			views := make([]triggerView, 0, len(triggers))
			for _, t := range triggers {
				views = append(views, newTriggerView(t))
			}

			if execute && len(triggers) > 0 {
				execs := rt.Engine.Execute(ctx, triggers)
				rt.Orchestrator.RecordExits(ctx, execs)
				bySymbol := make(map[string]stoploss.Execution, len(execs))
				for _, ex := range execs {
					bySymbol[ex.Trigger.Symbol] = ex
				}
				for i := range views {
					if ex, ok := bySymbol[views[i].Symbol]; ok {
						views[i].OrderID = ex.Result.OrderID
						views[i].Status = string(ex.Result.Status)
					} else {
						views[i].Status = "NOT_EXECUTED"
					}
				}
			}

			if output.IsJSON() {
				return output.JSON(views)
			}
			if len(views) == 0 {
				output.Success("No stop-loss triggers")
				return nil
			}
			table := NewTable(output, "SYMBOL", "QTY", "PRICE", "STOP", "P&L", "LIMIT", "STATUS")
			for _, v := range views {
				status := v.Status
				if status == "" {
					status = "TRIGGERED"
				}
				table.AddRow(
					v.Symbol,
					utils.FormatQuantity(v.Quantity),
					utils.FormatUSDFloat(v.Price),
					utils.FormatUSDFloat(v.Stop),
					utils.FormatPercent(v.LossPercent),
					utils.FormatPercent(v.Threshold),
					output.Status(status),
				)
			}
			table.Render()
			if !execute {
				output.Dim("Run with --execute to sell triggered positions")
			}
			return nil
		},
	}
	check.Flags().BoolVar(&execute, "execute", false, "sell triggered positions")
	cmd.AddCommand(check)

	return cmd
}
