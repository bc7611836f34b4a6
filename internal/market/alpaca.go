package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaSource fetches historical bars from the Alpaca market data API.
type AlpacaSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

func NewAlpacaSource(apiKey, apiSecret, feed string) *AlpacaSource {
	return &AlpacaSource{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: parseFeed(feed),
	}
}

func (s *AlpacaSource) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	tf, span, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	end := time.Now()
	// Go back twice the requested window so that weekends and halts
	// still leave enough bars.
	start := end.Add(-time.Duration(limit*2) * span)

	var raw []marketdata.Bar
	if IsCrypto(symbol) {
		crypto, err := s.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame:  tf,
			Start:      start,
			End:        end,
			TotalLimit: limit,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch crypto bars %s: %w", symbol, err)
		}
		for _, b := range crypto {
			raw = append(raw, marketdata.Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    uint64(b.Volume),
			})
		}
	} else {
		raw, err = s.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Start:      start,
			End:        end,
			TotalLimit: limit,
			Feed:       s.feed,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
		}
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, ErrDataUnavailable)
	}

	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}

	slog.Info("bars fetched", "symbol", symbol, "timeframe", timeframe, "count", len(bars))
	return bars, nil
}

// SupportedTimeframe reports whether the label maps to a fetchable
// timeframe. Used by config validation so a typo fails at startup rather
// than on the first cycle.
func SupportedTimeframe(timeframe string) bool {
	_, _, err := parseTimeframe(timeframe)
	return err == nil
}

// IsCrypto reports whether a symbol names a crypto pair ("BTC/USD" style).
func IsCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}

// parseTimeframe maps a timeframe label to the Alpaca timeframe and the
// wall-clock span of one bar, used to size the fetch window.
func parseTimeframe(timeframe string) (marketdata.TimeFrame, time.Duration, error) {
	switch timeframe {
	case "1m":
		return marketdata.OneMin, time.Minute, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), 5 * time.Minute, nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), 15 * time.Minute, nil
	case "30m":
		return marketdata.NewTimeFrame(30, marketdata.Min), 30 * time.Minute, nil
	case "1h", "60":
		return marketdata.OneHour, time.Hour, nil
	case "4h", "240":
		return marketdata.NewTimeFrame(4, marketdata.Hour), 4 * time.Hour, nil
	case "1D":
		return marketdata.OneDay, 24 * time.Hour, nil
	case "1W":
		return marketdata.NewTimeFrame(1, marketdata.Week), 7 * 24 * time.Hour, nil
	default:
		return marketdata.TimeFrame{}, 0, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
}
