// Package cli provides the command-line interface for the trading application.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"robotrader/internal/config"
	"robotrader/internal/logging"
	"robotrader/internal/models"
	"robotrader/internal/security"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// skipConfig marks commands that run without loading config.toml.
const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "robotrader",
		Short: "Robotrader - multi-asset automated trading bot",
		Long: `Robotrader trades a stock, bond and crypto portfolio on a schedule.

Every session first runs stop-loss exits, then evaluates each asset class
independently against its allocation target, then sends one summary.
Paper trading is the default; live trading requires Alpaca credentials.

Use 'robotrader run' to start the scheduler.
Use 'robotrader session morning' to run a single session now.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", "", "config directory (default: ~/.config/robotrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSessionCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newStopLossCmd(app))

	return rootCmd
}

// load reads the configuration and builds the logger.
func (a *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.ConfigDir)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}
	if json, _ := cmd.Flags().GetBool("json"); json {
		cfg.Logging.Console = false
	}
	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())

	if cfg.TemplateCreated != "" {
		NewOutput(cmd).Warning("Created template configuration at %s, running with defaults", cfg.TemplateCreated)
		a.Logger.Warn().Str("path", cfg.TemplateCreated).Msg("config.toml not found, template written")
	}
	return nil
}

// runtime wires the trading stack and connects the broker.
func (a *App) runtime(ctx context.Context, out *Output, requireCreds bool) (*Runtime, error) {
	if requireCreds {
		if err := a.Config.ValidateCredentials(); err != nil {
			return nil, err
		}
	}
	// Terminal summaries would corrupt JSON output.
	w := out.Writer()
	if out.IsJSON() {
		w = nil
	}
	rt, err := NewRuntime(ctx, a.Config, a.Logger, w, out.ColorEnabled())
	if err != nil {
		return nil, err
	}
	if err := rt.Start(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("robotrader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			view := newConfigView(app.Config)
			if output.IsJSON() {
				return output.JSON(view)
			}
			showConfig(output, view)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := app.ConfigDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.ValidateCredentials(); err != nil {
				output.Error("Credential check failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// configView is the printable configuration. Secrets are reduced to
// presence flags.
type configView struct {
	Dir            string             `json:"dir"`
	Mode           string             `json:"mode"`
	Broker         string             `json:"broker"`
	MarketData     string             `json:"market_data"`
	Cache          string             `json:"cache"`
	Allocation     map[string]float64 `json:"allocation"`
	StopLoss       bool               `json:"stop_loss"`
	TrailingPct    float64            `json:"trailing_percent"`
	MaxLossPct     float64            `json:"max_loss_percent"`
	Morning        string             `json:"morning"`
	Afternoon      string             `json:"afternoon"`
	Timezone       string             `json:"timezone"`
	Email          bool               `json:"email"`
	Store          string             `json:"store"`
	AlpacaKey      string             `json:"alpaca_key,omitempty"`
	HasAlpacaKeys  bool               `json:"has_alpaca_keys"`
	HasEmailCreds  bool               `json:"has_email_credentials"`
	SymbolCounts   map[string]int     `json:"symbol_counts"`
	HealthEndpoint string             `json:"health_endpoint,omitempty"`
}

func newConfigView(cfg *config.Config) configView {
	v := configView{
		Dir:         cfg.Dir,
		Mode:        cfg.Trading.Mode,
		Broker:      cfg.Trading.Broker,
		MarketData:  cfg.MarketData.Provider,
		Cache:       cfg.MarketData.Cache.Backend,
		Allocation:  make(map[string]float64),
		StopLoss:    cfg.StopLoss.Enabled,
		TrailingPct: cfg.StopLoss.TrailingPercent,
		MaxLossPct:  cfg.StopLoss.StopLossThreshold,
		Morning:     cfg.Schedule.Morning,
		Afternoon:   cfg.Schedule.Afternoon,
		Timezone:    cfg.Schedule.Timezone,
		Email:       cfg.Notifications.Email.Enabled,
		Store:       cfg.Store.Path,

		AlpacaKey:     security.MaskCredential(cfg.Credentials.AlpacaKey),
		HasAlpacaKeys: cfg.Credentials.AlpacaKey != "" && cfg.Credentials.AlpacaSecret != "",
		HasEmailCreds: cfg.Credentials.GmailAddress != "" && cfg.Credentials.GmailPassword != "",

		SymbolCounts: map[string]int{
			"equity": len(cfg.Symbols.Equity),
			"bonds":  len(cfg.Symbols.Bonds),
			"crypto": len(cfg.Symbols.Crypto),
		},
	}
	alloc := cfg.TargetAllocation()
	for _, class := range models.AssetClasses {
		v.Allocation[class.Label()] = alloc.Target(class)
	}
	if cfg.Health.Enabled {
		v.HealthEndpoint = fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port)
	}
	return v
}

func showConfig(output *Output, v configView) {
	output.Bold("Trading")
	output.Printf("  Mode:          %s\n", strings.ToUpper(v.Mode))
	output.Printf("  Broker:        %s\n", v.Broker)
	output.Printf("  Market Data:   %s (cache: %s)\n", v.MarketData, v.Cache)
	output.Printf("  Store:         %s\n", v.Store)
	output.Println()

	output.Bold("Allocation")
	for _, label := range []string{"equity", "bonds", "crypto"} {
		output.Printf("  %-14s %s  (%d symbols)\n", label+":", FormatFraction(v.Allocation[label]), v.SymbolCounts[label])
	}
	output.Println()

	output.Bold("Stop-Loss")
	output.Printf("  Enabled:       %v\n", v.StopLoss)
	output.Printf("  Trailing:      %.1f%%\n", v.TrailingPct)
	output.Printf("  Loss Limit:    %.1f%%\n", v.MaxLossPct)
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Morning:       %s %s\n", v.Morning, v.Timezone)
	output.Printf("  Afternoon:     %s %s\n", v.Afternoon, v.Timezone)
	if v.HealthEndpoint != "" {
		output.Printf("  Health:        http://%s\n", v.HealthEndpoint)
	}
	output.Println()

	output.Bold("Credentials")
	output.Printf("  Alpaca:        %s %s\n", present(v.HasAlpacaKeys), v.AlpacaKey)
	output.Printf("  Email:         %s (enabled: %v)\n", present(v.HasEmailCreds), v.Email)
}

func present(ok bool) string {
	if ok {
		return "set"
	}
	return "missing"
}
