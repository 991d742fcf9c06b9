package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"robotrader/internal/models"
)

// shutdownGrace bounds how long an in-flight session may take to finish
// after a stop signal.
const shutdownGrace = 2 * time.Minute

func newRunCmd(app *App) *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading scheduler",
		Long: `Start the scheduler: morning and afternoon sessions on weekdays plus
intraday stop-loss checks while the market is open.

On SIGINT or SIGTERM the running workflow finishes, remaining workflows are
skipped, the session summary is still sent and the process exits.`,
		Example: `  robotrader run
  robotrader run --now morning`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Jobs outlive the signal so the current session can summarize.
			jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(sigCtx))
			defer cancelJobs()

			rt, err := app.runtime(jobCtx, output, true)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			cfg := app.Config
			if !cfg.IsPaperMode() {
				output.Warning("LIVE TRADING MODE - real orders will be placed")
			}

			if err := rt.Scheduler.RegisterSessions(func(ctx context.Context, typ models.SessionType) {
				rt.RunSession(ctx, typ)
			}); err != nil {
				return err
			}
			if cfg.StopLoss.Enabled {
				if err := rt.Scheduler.RegisterIntraday(cfg.StopLoss.CheckInterval(), func(ctx context.Context) {
					_, _ = rt.Monitor.Check(ctx)
				}); err != nil {
					return err
				}
			}

			go rt.Health.Run(jobCtx)
			if cfg.Health.Enabled {
				srv := rt.NewServer()
				go func() {
					if err := srv.Run(jobCtx); err != nil {
						app.Logger.Error().Err(err).Msg("Health server stopped")
					}
				}()
			}

			rt.Scheduler.Start(jobCtx)
			output.Success("Robotrader running in %s mode with %s broker", strings.ToUpper(cfg.Trading.Mode), rt.Broker.Name())
			for _, e := range rt.Scheduler.Entries() {
				output.Dim("  %-20s next %s", e.Name, FormatDateTime(e.Next, rt.Scheduler.Hours().Location))
			}

			if now != "" {
				typ, err := parseSessionType(now)
				if err != nil {
					return err
				}
				go rt.RunSession(jobCtx, typ)
			}

			<-sigCtx.Done()
			output.Warning("Shutdown requested, finishing current workflow")
			app.Logger.Info().Msg("Shutdown signal received")

			rt.Orchestrator.RequestStop()
			done := rt.Scheduler.Stop()
			select {
			case <-done.Done():
			case <-time.After(shutdownGrace):
				app.Logger.Warn().Dur("grace", shutdownGrace).Msg("Jobs still running after grace period, cancelling")
			}
			cancelJobs()
			output.Info("Stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&now, "now", "", "also run a session immediately (morning|afternoon)")
	return cmd
}

// parseSessionType accepts morning or afternoon in any case.
func parseSessionType(s string) (models.SessionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(models.SessionMorning):
		return models.SessionMorning, nil
	case string(models.SessionAfternoon):
		return models.SessionAfternoon, nil
	}
	return "", errors.New("session must be morning or afternoon, got " + s)
}
