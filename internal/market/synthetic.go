package market

import (
	"math"
	"math/rand"
	"time"
)

// Synthetic generates random-walk bars for degraded-mode operation when the
// data API returns nothing. Results produced from it must be flagged as
// synthetic by the caller.
type Synthetic struct {
	rng *rand.Rand
}

func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{rng: rand.New(rand.NewSource(seed))}
}

func (s *Synthetic) Generate(symbol, timeframe string, limit int) []Bar {
	span := 24 * time.Hour
	if timeframe != "1D" && timeframe != "1W" {
		span = time.Hour
	}

	price := 100.0
	end := time.Now().Truncate(span)
	bars := make([]Bar, 0, limit)
	for i := 0; i < limit; i++ {
		ts := end.Add(-time.Duration(limit-1-i) * span)
		open := price
		price *= 1 + s.rng.NormFloat64()*0.02
		high := price * (1 + math.Abs(s.rng.NormFloat64())*0.01)
		low := price * (1 - math.Abs(s.rng.NormFloat64())*0.01)
		volume := int64(1_000_000 + s.rng.NormFloat64()*200_000)
		if volume < 0 {
			volume = 0
		}
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      open,
			High:      math.Max(high, math.Max(open, price)),
			Low:       math.Min(low, math.Min(open, price)),
			Close:     price,
			Volume:    volume,
		})
	}
	return bars
}
