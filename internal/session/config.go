package session

// SymbolsConfig lists the per-class trading universes.
type SymbolsConfig struct {
	Equity []string `mapstructure:"equity"`
	Bonds  []string `mapstructure:"bonds"`
	Crypto []string `mapstructure:"crypto"`
}

// DefaultEquitySymbols is used when no equity ranking is configured.
var DefaultEquitySymbols = []string{
	"STX", "PLTR", "WDC", "GEV", "NEM", "VST", "TPL", "SMCI",
	"ANET", "KLAC", "NVDA", "LRCX", "AXON", "NTAP", "PGR",
}

// DefaultBondSymbols are the bond ETFs traded by default.
var DefaultBondSymbols = []string{"TLT", "IEF", "SHY", "BND", "AGG"}

// DefaultCryptoSymbols are the crypto pairs traded by default.
var DefaultCryptoSymbols = []string{"BTC-USD", "ETH-USD", "ADA-USD", "SOL-USD", "DOT-USD"}

// SetDefaults fills empty universes.
func (s *SymbolsConfig) SetDefaults() {
	if len(s.Equity) == 0 {
		s.Equity = append([]string(nil), DefaultEquitySymbols...)
	}
	if len(s.Bonds) == 0 {
		s.Bonds = append([]string(nil), DefaultBondSymbols...)
	}
	if len(s.Crypto) == 0 {
		s.Crypto = append([]string(nil), DefaultCryptoSymbols...)
	}
}

// Config tunes the session orchestrator.
type Config struct {
	Symbols       SymbolsConfig `mapstructure:"symbols"`
	LookbackDays  int           `mapstructure:"lookback_days" default:"400" validate:"gte=60"`
	MaxEquityBuys int           `mapstructure:"max_equity_buys" default:"5" validate:"gte=1"`
	TradeAlerts   bool          `mapstructure:"-"`
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	c := Config{LookbackDays: 400, MaxEquityBuys: 5}
	c.Symbols.SetDefaults()
	return c
}
