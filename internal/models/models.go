// Package models provides domain models for the trading application.
package models

import (
	"fmt"
	"strings"
	"time"
)

// AssetClass identifies the allocation bucket a symbol belongs to.
type AssetClass string

const (
	AssetClassEquity      AssetClass = "EQUITY"
	AssetClassFixedIncome AssetClass = "FIXED_INCOME"
	AssetClassCrypto      AssetClass = "CRYPTO"
)

// AssetClasses lists every class in session order.
var AssetClasses = []AssetClass{AssetClassEquity, AssetClassFixedIncome, AssetClassCrypto}

// Label returns a short human-readable name.
func (a AssetClass) Label() string {
	switch a {
	case AssetClassEquity:
		return "equity"
	case AssetClassFixedIncome:
		return "bonds"
	case AssetClassCrypto:
		return "crypto"
	default:
		return strings.ToLower(string(a))
	}
}

// ParseAssetClass parses a class name, accepting the short labels too.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EQUITY", "EQUITIES", "STOCKS":
		return AssetClassEquity, nil
	case "FIXED_INCOME", "BONDS", "BOND":
		return AssetClassFixedIncome, nil
	case "CRYPTO":
		return AssetClassCrypto, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Valid reports whether the bar is internally consistent.
func (c Candle) Valid() bool {
	if c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
		return false
	}
	return c.High >= c.Low && c.High >= c.Close && c.Low <= c.Close
}

// Closes extracts closing prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes as floats.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.Volume)
	}
	return out
}

// BrokerPosition is one row of the broker's position snapshot.
type BrokerPosition struct {
	Symbol      string
	Quantity    float64
	MarketValue float64
	AverageCost float64
}

// CurrentPrice derives the per-unit price from the snapshot.
func (p BrokerPosition) CurrentPrice() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.MarketValue / p.Quantity
}

// IsLong reports whether the row is an open long position.
func (p BrokerPosition) IsLong() bool {
	return p.Quantity > 0
}

// AccountSnapshot is the broker view used to rebuild allocations.
type AccountSnapshot struct {
	TotalValue float64
	Positions  []BrokerPosition
	TakenAt    time.Time
}

// cryptoQuotes are the quote currencies recognized in pair symbols, longest
// first so USDT wins over USD.
var cryptoQuotes = []string{"USDT", "USDC", "USD"}

// maxEquityTicker is the longest plain US equity ticker.
const maxEquityTicker = 5

// CanonicalSymbol upper-cases a ticker and writes crypto pairs as BASE-QUOTE.
// "BTC/USD", "btc-usd" and Alpaca's position form "BTCUSD" all become
// "BTC-USD". Equity tickers pass through unchanged.
func CanonicalSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "-")
	if strings.ContainsAny(s, "-.") || len(s) <= maxEquityTicker {
		return s
	}
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q)+1 {
			return s[:len(s)-len(q)] + "-" + q
		}
	}
	return s
}

// CryptoPair splits a crypto pair symbol in any accepted form into base and
// quote. ok is false for anything that is not a pair.
func CryptoPair(symbol string) (base, quote string, ok bool) {
	base, quote, found := strings.Cut(CanonicalSymbol(symbol), "-")
	if !found || base == "" {
		return "", "", false
	}
	for _, q := range cryptoQuotes {
		if quote == q {
			return base, quote, true
		}
	}
	return "", "", false
}
