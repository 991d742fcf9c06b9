package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

// Alpaca reads bars and trades from the Alpaca market data API. Crypto
// symbols are given as BTC-USD and sent as BTC/USD.
type Alpaca struct {
	client *marketdata.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewAlpaca creates an Alpaca market data client.
func NewAlpaca(apiKey, apiSecret string, logger zerolog.Logger) *Alpaca {
	return &Alpaca{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		logger: logger.With().Str("source", "alpaca").Logger(),
		now:    time.Now,
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

// cryptoPair returns the BTC/USD form Alpaca's crypto endpoints expect.
func cryptoPair(symbol string) (string, bool) {
	base, quote, ok := models.CryptoPair(symbol)
	if !ok {
		return symbol, false
	}
	return base + "/" + quote, true
}

func (a *Alpaca) DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := a.now().AddDate(0, 0, -days)

	var out []models.Candle
	if pair, ok := cryptoPair(symbol); ok {
		bars, err := a.client.GetCryptoBars(pair, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
		})
		if err != nil {
			return nil, a.wrap(symbol, err)
		}
		for _, b := range bars {
			out = append(out, models.Candle{
				Timestamp: b.Timestamp, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: int64(b.Volume),
			})
		}
	} else {
		bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
		})
		if err != nil {
			return nil, a.wrap(symbol, err)
		}
		for _, b := range bars {
			out = append(out, models.Candle{
				Timestamp: b.Timestamp, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: int64(b.Volume),
			})
		}
	}

	out = cleanBars(out)
	if len(out) == 0 {
		return nil, apperrors.NewDataError("alpaca", symbol, "no bars", apperrors.ErrNoData)
	}
	return out, nil
}

func (a *Alpaca) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if pair, ok := cryptoPair(symbol); ok {
		trade, err := a.client.GetLatestCryptoTrade(pair, marketdata.GetLatestCryptoTradeRequest{})
		if err != nil {
			return 0, a.wrap(symbol, err)
		}
		if trade == nil || trade.Price <= 0 {
			return 0, apperrors.NewDataError("alpaca", symbol, "no trade", apperrors.ErrNoData)
		}
		return trade.Price, nil
	}
	trade, err := a.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, a.wrap(symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, apperrors.NewDataError("alpaca", symbol, "no trade", apperrors.ErrNoData)
	}
	return trade.Price, nil
}

func (a *Alpaca) wrap(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "invalid symbol"):
		return apperrors.NewDataError("alpaca", symbol, err.Error(), apperrors.ErrSymbolNotFound)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return apperrors.NewDataError("alpaca", symbol, err.Error(), apperrors.ErrRateLimited)
	}
	return apperrors.NewDataError("alpaca", symbol, "request failed", err)
}
