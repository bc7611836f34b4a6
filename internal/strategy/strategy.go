// Package strategy evaluates the multi-factor entry/exit decision: EMA trend,
// MACD/RSI/ADX momentum, volume and volatility filters, and the session/rate
// gate, combined into a BUY/SELL/HOLD signal with a structured rationale.
package strategy

import (
	"math"
	"time"

	"fusion/internal/gate"
	"fusion/internal/indicator"
	"fusion/internal/market"
)

type Signal string

const (
	Hold Signal = "HOLD"
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
)

type Config struct {
	RSILongMin  float64
	RSILongMax  float64
	RSIShortMin float64
	RSIShortMax float64
	ADXMin      float64
	MinATRPct   float64
	VolFilter   bool
	VolMinMult  float64
	MinBarsGap  int
	UseHTF      bool
}

// Filters is the snapshot of every gate and filter boolean that produced a
// decision. It is part of the decision contract, not just logging.
type Filters struct {
	InSession      bool `json:"in_session"`
	VolumeOK       bool `json:"vol_ok"`
	VolatilityOK   bool `json:"vol_ok2"`
	Cooling        bool `json:"cooling"`
	CanTradeToday  bool `json:"can_trade_today"`
	BarsSinceEntry int  `json:"bars_since_entry"`
}

// Decision is produced once per evaluation and is immutable.
type Decision struct {
	Signal     Signal           `json:"signal"`
	Reasons    []string         `json:"reasons"`
	Price      float64          `json:"price"`
	Timestamp  time.Time        `json:"timestamp"`
	Filters    Filters          `json:"filters"`
	Indicators indicator.Values `json:"indicators"`
}

// Inputs carries everything one evaluation needs. HTFEMA200 is NaN when the
// higher-timeframe trend value is unavailable; the filter is then skipped.
type Inputs struct {
	Bars       []market.Bar
	Indicators indicator.Set
	HTFEMA200  float64
	Gate       gate.Result
	MinBars    int
}

// Evaluate turns the enriched series and gate state into a decision. It is
// pure given its inputs.
func Evaluate(in Inputs, cfg Config) Decision {
	if len(in.Bars) < in.MinBars {
		return Decision{
			Signal:  Hold,
			Reasons: []string{reasonInsufficientData},
		}
	}

	last := len(in.Bars) - 1
	bar := in.Bars[last]
	vals := in.Indicators.At(last)

	// Strict ordering on both legs; NaN comparisons are false, so an
	// undefined EMA can never assert a trend.
	trendUp := bar.Close > vals.EMAFast && vals.EMAFast > vals.EMASlow
	trendDown := bar.Close < vals.EMAFast && vals.EMAFast < vals.EMASlow

	if cfg.UseHTF && !math.IsNaN(in.HTFEMA200) {
		trendUp = trendUp && bar.Close > in.HTFEMA200
		trendDown = trendDown && bar.Close < in.HTFEMA200
	}

	momLong := vals.MACDHist > 0 &&
		cfg.RSILongMin <= vals.RSI && vals.RSI <= cfg.RSILongMax &&
		vals.ADX >= cfg.ADXMin
	momShort := vals.MACDHist < 0 &&
		cfg.RSIShortMin <= vals.RSI && vals.RSI <= cfg.RSIShortMax &&
		vals.ADX >= cfg.ADXMin

	volumeOK := true
	if cfg.VolFilter {
		volumeOK = float64(bar.Volume) > vals.VolSMA*cfg.VolMinMult
	}
	volatilityOK := vals.ATRPct >= cfg.MinATRPct

	filters := Filters{
		InSession:      in.Gate.InSession,
		VolumeOK:       volumeOK,
		VolatilityOK:   volatilityOK,
		Cooling:        in.Gate.Cooling,
		CanTradeToday:  in.Gate.CanTradeToday,
		BarsSinceEntry: in.Gate.BarsSinceEntry,
	}

	eligible := volumeOK && volatilityOK && in.Gate.InSession &&
		!in.Gate.Cooling && in.Gate.CanTradeToday &&
		in.Gate.BarsSinceEntry >= cfg.MinBarsGap

	decision := Decision{
		Signal:     Hold,
		Price:      bar.Close,
		Timestamp:  bar.Timestamp,
		Filters:    filters,
		Indicators: vals,
	}

	switch {
	case eligible && trendUp && momLong:
		decision.Signal = Buy
		decision.Reasons = []string{"trend up", "momentum long", "all filters ok"}
	case eligible && trendDown && momShort:
		decision.Signal = Sell
		decision.Reasons = []string{"trend down", "momentum short", "all filters ok"}
	default:
		decision.Reasons = holdReasons(in, cfg, filters, trendUp, trendDown, momLong, momShort)
	}
	return decision
}

const reasonInsufficientData = "insufficient data"

func holdReasons(in Inputs, cfg Config, f Filters, trendUp, trendDown, momLong, momShort bool) []string {
	var reasons []string
	if !f.InSession {
		reasons = append(reasons, "outside trading session")
	}
	if !f.VolumeOK {
		reasons = append(reasons, "volume filter failed")
	}
	if !f.VolatilityOK {
		reasons = append(reasons, "volatility filter failed")
	}
	if f.Cooling {
		reasons = append(reasons, "cooldown active")
	}
	if !f.CanTradeToday {
		reasons = append(reasons, "daily trade limit reached")
	}
	if f.BarsSinceEntry < cfg.MinBarsGap {
		reasons = append(reasons, "min bars gap not met")
	}
	if !trendUp && !trendDown {
		reasons = append(reasons, "no clear trend")
	}
	if !momLong && !momShort {
		reasons = append(reasons, "momentum not aligned")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "trend and momentum not aligned")
	}
	return reasons
}
