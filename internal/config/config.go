// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"robotrader/internal/analysis/regime"
	"robotrader/internal/broker"
	apperrors "robotrader/internal/errors"
	"robotrader/internal/logging"
	"robotrader/internal/marketdata"
	"robotrader/internal/notify"
	"robotrader/internal/portfolio"
	"robotrader/internal/resilience"
	"robotrader/internal/scheduler"
	"robotrader/internal/server"
	"robotrader/internal/session"
	"robotrader/internal/stoploss"
	"robotrader/pkg/utils"
)

// LiveAlpacaURL is the trading endpoint used in live mode.
const LiveAlpacaURL = "https://api.alpaca.markets"

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig              `mapstructure:"trading"`
	Allocation    portfolio.AllocationConfig `mapstructure:"allocation"`
	StopLoss      stoploss.Config            `mapstructure:"stop_loss"`
	Regime        regime.Config              `mapstructure:"regime"`
	Symbols       session.SymbolsConfig      `mapstructure:"symbols"`
	Schedule      scheduler.Config           `mapstructure:"schedule"`
	Retry         RetryConfig                `mapstructure:"retry"`
	MarketData    marketdata.Config          `mapstructure:"market_data"`
	Notifications NotificationConfig         `mapstructure:"notifications"`
	Health        server.Config              `mapstructure:"health"`
	Store         StoreConfig                `mapstructure:"store"`
	Logging       LoggingConfig              `mapstructure:"logging"`
	Credentials   Credentials                `mapstructure:"-"` // Loaded from the environment

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
	// TemplateCreated is set when a first run wrote config.toml.
	TemplateCreated string `mapstructure:"-"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	broker.Config `mapstructure:",squash"`

	Mode          string `mapstructure:"mode" default:"paper" validate:"oneof=live paper"` // "live", "paper"
	LookbackDays  int    `mapstructure:"lookback_days" default:"400" validate:"gte=60"`
	MaxEquityBuys int    `mapstructure:"max_equity_buys" default:"5" validate:"gte=1"`
}

// RetryConfig holds the per-concern retry and breaker settings.
type RetryConfig struct {
	DataAttempts     int           `mapstructure:"data_attempts" default:"3" validate:"gte=1"`
	DataDelay        time.Duration `mapstructure:"data_delay" default:"1s" validate:"gt=0"`
	BrokerAttempts   int           `mapstructure:"broker_attempts" default:"5" validate:"gte=1"`
	BrokerDelay      time.Duration `mapstructure:"broker_delay" default:"2s" validate:"gt=0"`
	NotifyAttempts   int           `mapstructure:"notify_attempts" default:"2" validate:"gte=1"`
	NotifyDelay      time.Duration `mapstructure:"notify_delay" default:"5s" validate:"gt=0"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" default:"5" validate:"gte=1"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout" default:"60s" validate:"gt=0"`
}

// Breaker returns the circuit breaker settings.
func (r RetryConfig) Breaker() resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig()
	cb.FailureThreshold = r.BreakerThreshold
	cb.Timeout = r.BreakerTimeout
	return cb
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Terminal bool               `mapstructure:"terminal" default:"true"`
	Email    notify.EmailConfig `mapstructure:"email"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig is the file form of logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info" validate:"oneof=trace debug info warn error fatal disabled"`
	Console    bool   `mapstructure:"console" default:"true"`
	File       bool   `mapstructure:"file" default:"true"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size" default:"100" validate:"gt=0"`
	MaxBackups int    `mapstructure:"max_backups" default:"7" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" default:"30" validate:"gte=0"`
}

// Credentials holds secrets read from the environment or a .env file.
type Credentials struct {
	AlpacaKey     string   `envconfig:"ALPACA_API_KEY"`
	AlpacaSecret  string   `envconfig:"ALPACA_API_SECRET"`
	GmailAddress  string   `envconfig:"GMAIL_ADDRESS"`
	GmailPassword string   `envconfig:"GMAIL_APP_PASSWORD"`
	Recipients    []string `envconfig:"RECIPIENT_EMAIL"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/robotrader"
	}
	return filepath.Join(home, ".config", "robotrader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Credentials are
// read but not required here; see ValidateCredentials.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{Dir: configDir}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	created, err := loadConfigFile(configDir, "config", cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	cfg.TemplateCreated = created

	if err := envconfig.Process("", &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)
	cfg.applyDerived()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env from the config directory, then the working
// directory. Existing environment variables win.
func loadDotEnv(configDir string) error {
	for _, path := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func loadConfigFile(configDir, name string, target *Config) (string, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, create template and run on defaults
			return createTemplateConfig(configDir, name)
		}
		return "", err
	}

	return "", v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	// Trading mode
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("ROBOTRADER_BROKER"); v != "" {
		cfg.Trading.Broker = strings.ToLower(v)
	}
	if v := os.Getenv("ROBOTRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if cfg.Credentials.RedisPassword != "" {
		cfg.MarketData.Cache.Redis.Password = cfg.Credentials.RedisPassword
	}
}

// applyDerived fills values that depend on other settings.
func (c *Config) applyDerived() {
	c.Symbols.SetDefaults()

	email := &c.Notifications.Email
	email.Username = c.Credentials.GmailAddress
	email.Password = c.Credentials.GmailPassword
	email.Recipients = c.Credentials.Recipients
	if len(email.Recipients) == 0 && email.Username != "" {
		email.Recipients = []string{email.Username}
	}

	if c.Trading.Mode == "live" && strings.Contains(c.Trading.AlpacaURL, "paper-api") {
		c.Trading.AlpacaURL = LiveAlpacaURL
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Dir, "robotrader.db")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.Dir, "logs", "robotrader.log")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		var errs []error
		for _, fe := range fieldErrs {
			msg := fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			errs = append(errs, apperrors.NewValidationError(fe.Namespace(), fe.Value(), "must satisfy "+msg))
		}
		return errors.Join(errs...)
	}

	if _, err := c.Allocation.Build(); err != nil {
		return err
	}

	if c.Trading.Mode == "live" && c.Trading.Broker != "alpaca" {
		return apperrors.NewValidationError("trading.broker", c.Trading.Broker, "live mode requires the alpaca broker")
	}
	if _, err := utils.NewMarketHours(c.Schedule.Timezone, c.Schedule.MarketOpen, c.Schedule.MarketClose); err != nil {
		return apperrors.NewValidationError("schedule", c.Schedule.Timezone, err.Error())
	}
	for name, clock := range map[string]string{"schedule.morning": c.Schedule.Morning, "schedule.afternoon": c.Schedule.Afternoon} {
		if _, err := scheduler.WeekdaySpec(clock); err != nil {
			return apperrors.NewValidationError(name, clock, err.Error())
		}
	}

	return nil
}

// ValidateCredentials checks the secrets the trading commands need.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.Trading.Broker == "alpaca" || c.MarketData.Provider == "alpaca" {
		if c.Credentials.AlpacaKey == "" {
			missing = append(missing, "ALPACA_API_KEY")
		}
		if c.Credentials.AlpacaSecret == "" {
			missing = append(missing, "ALPACA_API_SECRET")
		}
	}
	if c.Notifications.Email.Enabled {
		if c.Credentials.GmailAddress == "" {
			missing = append(missing, "GMAIL_ADDRESS")
		}
		if c.Credentials.GmailPassword == "" {
			missing = append(missing, "GMAIL_APP_PASSWORD")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// TargetAllocation returns the validated allocation targets.
func (c *Config) TargetAllocation() portfolio.AssetAllocation {
	a, err := c.Allocation.Build()
	if err != nil {
		return portfolio.DefaultAllocation()
	}
	return a
}

// SessionConfig assembles the orchestrator settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Symbols:       c.Symbols,
		LookbackDays:  c.Trading.LookbackDays,
		MaxEquityBuys: c.Trading.MaxEquityBuys,
		TradeAlerts:   c.Notifications.Email.Enabled && c.Notifications.Email.TradeAlerts,
	}
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
