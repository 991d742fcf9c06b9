package portfolio

import (
	"github.com/rs/zerolog"

	"robotrader/internal/models"
)

// DefaultFixedIncomeSymbols are the bond ETFs recognized as fixed income.
var DefaultFixedIncomeSymbols = []string{
	"TLT", "IEF", "SHY", "BND", "AGG", "LQD", "HYG", "TIP", "VGIT", "VGLT", "GOVT", "SCHZ",
}

// DefaultCryptoSymbols are the crypto pairs recognized as crypto.
var DefaultCryptoSymbols = []string{
	"BTC-USD", "ETH-USD", "ADA-USD", "SOL-USD", "DOT-USD",
	"MATIC-USD", "AVAX-USD", "LINK-USD", "UNI-USD", "ATOM-USD",
}

// Classification is the result of classifying one symbol. Defaulted means no
// explicit set matched and the equity fallback was applied.
type Classification struct {
	Symbol    string
	Class     models.AssetClass
	Defaulted bool
}

// Classifier maps symbols to asset classes by set membership.
type Classifier struct {
	fixedIncome map[string]struct{}
	crypto      map[string]struct{}
	logger      zerolog.Logger
}

// NewClassifier builds a classifier from explicit symbol sets.
func NewClassifier(fixedIncome, crypto []string, logger zerolog.Logger) *Classifier {
	c := &Classifier{
		fixedIncome: make(map[string]struct{}, len(fixedIncome)),
		crypto:      make(map[string]struct{}, len(crypto)),
		logger:      logger.With().Str("component", "classifier").Logger(),
	}
	for _, s := range fixedIncome {
		c.fixedIncome[NormalizeSymbol(s)] = struct{}{}
	}
	for _, s := range crypto {
		c.crypto[NormalizeSymbol(s)] = struct{}{}
	}
	return c
}

// DefaultClassifier uses the built-in bond and crypto sets.
func DefaultClassifier(logger zerolog.Logger) *Classifier {
	return NewClassifier(DefaultFixedIncomeSymbols, DefaultCryptoSymbols, logger)
}

// NormalizeSymbol returns the key used for holdings and symbol sets, so the
// broker's "BTCUSD" and the configured "BTC-USD" compare equal.
func NormalizeSymbol(symbol string) string {
	return models.CanonicalSymbol(symbol)
}

// Lookup classifies a symbol and reports whether the fallback was used.
func (c *Classifier) Lookup(symbol string) Classification {
	s := NormalizeSymbol(symbol)
	if _, ok := c.fixedIncome[s]; ok {
		return Classification{Symbol: s, Class: models.AssetClassFixedIncome}
	}
	if c.isCrypto(s) {
		return Classification{Symbol: s, Class: models.AssetClassCrypto}
	}
	return Classification{Symbol: s, Class: models.AssetClassEquity, Defaulted: true}
}

// Classify returns the asset class of a symbol. Unknown symbols are treated
// as equities, and that fallback is logged.
func (c *Classifier) Classify(symbol string) models.AssetClass {
	res := c.Lookup(symbol)
	if res.Defaulted {
		c.logger.Debug().Str("symbol", res.Symbol).Msg("Symbol not in bond or crypto sets, classified as equity")
	}
	return res.Class
}

func (c *Classifier) isCrypto(s string) bool {
	_, ok := c.crypto[s]
	return ok
}
