// Package logging builds the zerolog loggers used across the bot and holds
// the event helpers for trades, orders, stop-loss exits and sessions.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects the console and rotating-file sinks.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

var levelTags = map[string]string{
	"trace": "\033[90mTRC\033[0m",
	"debug": "\033[36mDBG\033[0m",
	"info":  "\033[32mINF\033[0m",
	"warn":  "\033[33mWRN\033[0m",
	"error": "\033[31mERR\033[0m",
	"fatal": "\033[35mFTL\033[0m",
}

// NewLoggerWithConfig builds a logger writing colored lines to stderr and
// JSON lines to a rotated file. With neither sink enabled logs are
// discarded, so command output stays machine-readable.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if tag, ok := levelTags[asString(i)]; ok {
					return tag
				}
				return "???"
			},
		})
	}
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Caller().Logger()
}

// NewTestLogger writes bare JSON lines to w at debug level.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel)
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func asString(i interface{}) string {
	s, _ := i.(string)
	return s
}

// WithSession tags every line with the session ID and type.
func WithSession(logger zerolog.Logger, sessionID, sessionType string) zerolog.Logger {
	return logger.With().Str("session_id", sessionID).Str("session_type", sessionType).Logger()
}

// WithAssetClass tags a workflow's lines with its asset class.
func WithAssetClass(logger zerolog.Logger, class string) zerolog.Logger {
	return logger.With().Str("asset_class", class).Logger()
}

func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogTrade records a filled signal order.
func LogTrade(logger zerolog.Logger, symbol, side string, qty, price float64, orderID string) {
	logger.Info().
		Str("event", "trade").
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", qty).
		Float64("price", price).
		Str("order_id", orderID).
		Msg("Trade executed")
}

// LogOrder records a broker order state change.
func LogOrder(logger zerolog.Logger, orderID, symbol, side, status string) {
	logger.Info().
		Str("event", "order").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Str("status", status).
		Msg("Order update")
}

// LogStopLoss records a stop-loss exit. These never reach the notifier.
func LogStopLoss(logger zerolog.Logger, symbol string, lossPercent float64, reason string) {
	logger.Warn().
		Str("event", "stop_loss_executed").
		Str("symbol", symbol).
		Float64("loss_percent", lossPercent).
		Str("reason", reason).
		Msg("Stop-loss executed without notification")
}

func LogSessionStart(logger zerolog.Logger, sessionType string) {
	logger.Info().
		Str("event", "session_start").
		Str("session_type", sessionType).
		Msg("Trading session started")
}

func LogSessionEnd(logger zerolog.Logger, sessionType string, totalTrades int, netProfit float64) {
	logger.Info().
		Str("event", "session_end").
		Str("session_type", sessionType).
		Int("total_trades", totalTrades).
		Float64("net_profit", netProfit).
		Msg("Trading session ended")
}
