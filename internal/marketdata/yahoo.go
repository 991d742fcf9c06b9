package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo reads the public Yahoo Finance chart API.
type Yahoo struct {
	http   *resty.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewYahoo creates a Yahoo client. An empty baseURL uses the public host.
func NewYahoo(baseURL string, timeout time.Duration, logger zerolog.Logger) *Yahoo {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Yahoo{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", "Mozilla/5.0").
			SetHeader("Accept", "application/json"),
		logger: logger.With().Str("source", "yahoo").Logger(),
		now:    time.Now,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol string, params map[string]string) (*yahooChart, error) {
	var chart yahooChart
	resp, err := y.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(params).
		SetResult(&chart).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewDataError("yahoo", symbol, "request failed", apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error()))
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return nil, apperrors.NewDataError("yahoo", symbol, "unknown symbol", apperrors.ErrSymbolNotFound)
	case code == http.StatusTooManyRequests:
		return nil, apperrors.NewDataError("yahoo", symbol, "throttled", apperrors.ErrRateLimited)
	case code >= 500:
		return nil, apperrors.NewDataError("yahoo", symbol, fmt.Sprintf("status %d", code), apperrors.ErrConnectionFailed)
	case code != http.StatusOK:
		return nil, apperrors.NewDataError("yahoo", symbol, fmt.Sprintf("status %d", code), apperrors.ErrNoData)
	}

	if chart.Chart.Error != nil {
		return nil, apperrors.NewDataError("yahoo", symbol, chart.Chart.Error.Description, apperrors.ErrNoData)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, apperrors.NewDataError("yahoo", symbol, "empty result", apperrors.ErrNoData)
	}
	return &chart, nil
}

// DailyBars returns up to days calendar days of daily bars, oldest first.
func (y *Yahoo) DailyBars(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	end := y.now()
	start := end.AddDate(0, 0, -days)
	chart, err := y.fetchChart(ctx, symbol, map[string]string{
		"interval": "1d",
		"period1":  strconv.FormatInt(start.Unix(), 10),
		"period2":  strconv.FormatInt(end.Unix(), 10),
	})
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 || len(result.Timestamp) == 0 {
		return nil, apperrors.NewDataError("yahoo", symbol, "no bars", apperrors.ErrNoData)
	}
	q := result.Indicators.Quote[0]

	bars := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c, ok := at(q.Close, i)
		if !ok {
			continue // null bar, e.g. a holiday
		}
		o, _ := at(q.Open, i)
		h, _ := at(q.High, i)
		l, _ := at(q.Low, i)
		v, _ := at(q.Volume, i)
		bars = append(bars, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    int64(v),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	bars = cleanBars(bars)
	if len(bars) == 0 {
		return nil, apperrors.NewDataError("yahoo", symbol, "no valid bars", apperrors.ErrNoData)
	}
	return bars, nil
}

// LastPrice returns the regular market price, falling back to the last close.
func (y *Yahoo) LastPrice(ctx context.Context, symbol string) (float64, error) {
	chart, err := y.fetchChart(ctx, symbol, map[string]string{"interval": "1d", "range": "5d"})
	if err != nil {
		return 0, err
	}
	result := chart.Chart.Result[0]
	if p := result.Meta.RegularMarketPrice; p > 0 {
		return p, nil
	}
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if c, ok := at(closes, i); ok && c > 0 {
				return c, nil
			}
		}
	}
	return 0, apperrors.NewDataError("yahoo", symbol, "no price", apperrors.ErrNoData)
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
