// Package risk converts a decision into a position size under a risk budget
// and enforces account-level trading restrictions.
package risk

import (
	"errors"
	"log/slog"
	"math"
)

// ErrPatternDayTrader is returned when the account has exhausted its day
// trades and sits under the equity threshold, where a new entry could become
// impossible to exit.
var ErrPatternDayTrader = errors.New("pattern day trader restriction")

const (
	pdtMaxDayTrades = 3
	pdtEquityFloor  = 25_000
)

type SizerConfig struct {
	UseFixedRisk bool
	RiskPct      float64 // percent of equity risked per trade
	ATRMultSL    float64 // stop distance in ATR multiples
	FallbackPct  float64 // percent of equity for fallback sizing
}

// Shares returns the integer share quantity for an entry. Fixed-risk sizing
// divides the risk capital by the stop distance; when that is disabled or the
// stop distance is degenerate (zero ATR), it falls back to a percentage of
// equity at the current price. Never returns less than 1 for positive price
// and equity.
func Shares(price, atr, equity float64, cfg SizerConfig) int {
	stopDist := atr * cfg.ATRMultSL

	if cfg.UseFixedRisk && stopDist > 0 {
		riskCapital := equity * cfg.RiskPct / 100.0
		qty := int(math.Floor(riskCapital / stopDist))
		if qty < 1 {
			qty = 1
		}
		slog.Debug("fixed risk sizing", "price", price, "stop_dist", stopDist, "qty", qty)
		return qty
	}

	qty := int(math.Floor(equity * cfg.FallbackPct / 100.0 / price))
	if qty < 1 {
		qty = 1
	}
	slog.Debug("fallback sizing", "price", price, "qty", qty)
	return qty
}

// AllowNewEntry rejects entries that would strand the account in a position
// it cannot legally close: three day trades used with equity under $25k.
func AllowNewEntry(dayTradeCount int64, equity float64) error {
	if dayTradeCount >= pdtMaxDayTrades && equity < pdtEquityFloor {
		slog.Info("entry rejected", "reason", "pattern_day_trader", "day_trades", dayTradeCount, "equity", equity)
		return ErrPatternDayTrader
	}
	return nil
}
