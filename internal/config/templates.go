package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Robotrader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Broker: "alpaca" or "paper" (in-process simulation)
broker = "paper"
# Starting cash for the simulated broker
paper_cash = 100000.0
alpaca_base_url = "https://paper-api.alpaca.markets"
# How long to wait for a fill before reporting UNKNOWN
fill_timeout = "30s"
fill_poll_interval = "1s"
# Daily bars fetched for signal generation
lookback_days = 400
# Equity buys per session, best one-year return first
max_equity_buys = 5

[allocation]
# Target fractions, must sum to 1.0
equity = 0.60
fixed_income = 0.30
crypto = 0.10

[stop_loss]
enabled = true
trailing_percent = 5.0
atr_multiplier = 2.0
atr_period = 14
atr_lookback_days = 30
atr_refresh_interval = "1h"
# Tighten the loss gate when the volatility regime is high
regime_aware = true
high_vol_threshold = 0.5
high_vol_tightening = 0.6
# Loss percent that forces an exit
stop_loss_threshold = -5.0
# Minutes between intraday checks
intraday_check_interval = 15
# Minutes a new position is held before stops apply
min_hold_time = 30

[regime]
short_period = 5
long_period = 20
steepness = 5.0
lookback_days = 90

[symbols]
equity = ["STX", "PLTR", "WDC", "GEV", "NEM", "VST", "TPL", "SMCI", "ANET", "KLAC", "NVDA", "LRCX", "AXON", "NTAP", "PGR"]
bonds = ["TLT", "IEF", "SHY", "BND", "AGG"]
crypto = ["BTC-USD", "ETH-USD", "ADA-USD", "SOL-USD", "DOT-USD"]

[schedule]
# Exchange-local times, weekdays only
timezone = "America/New_York"
morning = "09:35"
afternoon = "15:30"
market_open = "09:30"
market_close = "16:00"

[retry]
data_attempts = 3
data_delay = "1s"
broker_attempts = 5
broker_delay = "2s"
notify_attempts = 2
notify_delay = "5s"
# Consecutive failures before a function's breaker opens
breaker_threshold = 5
breaker_timeout = "60s"

[market_data]
# Provider: "yahoo" or "alpaca"
provider = "yahoo"
timeout = "30s"
# Requests per second to the provider (0 disables throttling)
rate_limit = 2.0
rate_burst = 5

[market_data.cache]
# Backend: "memory", "redis" or "none"
backend = "memory"
bars_ttl = "1h"
price_ttl = "1m"

[market_data.cache.redis]
addr = "localhost:6379"
db = 0
prefix = "robotrader"

[notifications]
# Echo notifications to the terminal
terminal = true

[notifications.email]
# Credentials come from GMAIL_ADDRESS, GMAIL_APP_PASSWORD and RECIPIENT_EMAIL
enabled = true
trade_alerts = true
smtp_host = "smtp.gmail.com"
smtp_port = 465

[health]
enabled = true
host = "0.0.0.0"
port = 8080

[store]
# Defaults to robotrader.db in the config directory
path = ""

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const envTemplate = `# Robotrader Credentials
# WARNING: Keep this file secure! Do not commit to version control.
# Copy to .env and fill in.

ALPACA_API_KEY=
ALPACA_API_SECRET=
GMAIL_ADDRESS=
GMAIL_APP_PASSWORD=
# Comma separated, defaults to GMAIL_ADDRESS
RECIPIENT_EMAIL=
`

// createTemplateConfig writes config.toml and an example env file and
// returns the config path.
func createTemplateConfig(configDir, name string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	envPath := filepath.Join(configDir, ".env.example")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Use restricted permissions for credentials file
		if err := os.WriteFile(envPath, []byte(envTemplate), 0600); err != nil {
			return "", fmt.Errorf("writing credentials template: %w", err)
		}
	}

	return path, nil
}
