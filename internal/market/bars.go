package market

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable is returned when a source produces no bars for a symbol.
var ErrDataUnavailable = errors.New("no market data available")

// Bar is one OHLCV candle. Sequences are ordered by strictly increasing
// timestamp with no duplicates.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Source provides historical bars for a symbol.
type Source interface {
	Bars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
}
