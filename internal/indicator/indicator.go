// Package indicator derives technical series from OHLCV bars. All series are
// aligned with the input bars; warm-up indices hold NaN so that an undefined
// value can never be mistaken for zero.
package indicator

import (
	"math"

	"fusion/internal/market"
)

type Config struct {
	EMAFast    int
	EMASlow    int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	RSI        int
	ADX        int
	ATR        int
	VolSMA     int
	VolFilter  bool
}

// MaxLookback is the largest warm-up window among the configured indicators.
// Series shorter than this cannot produce a defined signal.
func (c Config) MaxLookback() int {
	n := c.EMASlow
	for _, v := range []int{c.MACDSlow, c.RSI, c.ADX, c.ATR} {
		if v > n {
			n = v
		}
	}
	return n
}

// Set holds the derived series, one value per input bar.
type Set struct {
	EMAFast    []float64
	EMASlow    []float64
	MACDLine   []float64
	MACDSignal []float64
	MACDHist   []float64
	RSI        []float64
	ADX        []float64
	ATR        []float64
	ATRPct     []float64
	VolSMA     []float64
}

// Values is the snapshot of every indicator at one bar. Unknown values are
// NaN; comparisons against NaN are false, which is exactly the behavior the
// evaluator relies on. JSON encoding lives in MarshalJSON, which turns NaN
// into null.
type Values struct {
	EMAFast    float64
	EMASlow    float64
	MACDLine   float64
	MACDSignal float64
	MACDHist   float64
	RSI        float64
	ADX        float64
	ATR        float64
	ATRPct     float64
	VolSMA     float64
}

func (s Set) Len() int { return len(s.EMAFast) }

func (s Set) At(i int) Values {
	return Values{
		EMAFast:    s.EMAFast[i],
		EMASlow:    s.EMASlow[i],
		MACDLine:   s.MACDLine[i],
		MACDSignal: s.MACDSignal[i],
		MACDHist:   s.MACDHist[i],
		RSI:        s.RSI[i],
		ADX:        s.ADX[i],
		ATR:        s.ATR[i],
		ATRPct:     s.ATRPct[i],
		VolSMA:     s.VolSMA[i],
	}
}

// Compute derives every configured series from bars. It is deterministic and
// has no side effects: identical bars and config yield identical output.
func Compute(bars []market.Bar, cfg Config) Set {
	n := len(bars)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	set := Set{
		EMAFast: EMA(closes, cfg.EMAFast),
		EMASlow: EMA(closes, cfg.EMASlow),
		RSI:     RSI(closes, cfg.RSI),
		ADX:     ADX(bars, cfg.ADX),
		ATR:     ATR(bars, cfg.ATR),
	}

	set.MACDLine, set.MACDSignal, set.MACDHist = MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)

	set.ATRPct = make([]float64, n)
	for i := range set.ATRPct {
		set.ATRPct[i] = set.ATR[i] / closes[i] * 100.0
	}

	set.VolSMA = nanSlice(n)
	if cfg.VolFilter {
		set.VolSMA = SMA(volumes, cfg.VolSMA)
	}

	return set
}

// EMA computes an exponential moving average seeded with the simple average
// of the first window values. Indices before window-1 are NaN.
func EMA(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	// Skip any NaN prefix so EMAs can be chained (MACD signal line).
	first := 0
	for first < len(values) && math.IsNaN(values[first]) {
		first++
	}
	if len(values)-first < window {
		return out
	}

	sum := 0.0
	for i := first; i < first+window; i++ {
		sum += values[i]
	}
	out[first+window-1] = sum / float64(window)

	k := 2.0 / float64(window+1)
	for i := first + window; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// SMA computes a simple moving average. Indices before window-1 are NaN.
func SMA(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// MACD returns the convergence/divergence line, its signal EMA, and the
// histogram (line minus signal).
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	line = nanSlice(len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}

	sig = EMA(line, signal)

	hist = nanSlice(len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// RSI computes a Wilder-smoothed relative strength index bounded [0,100].
// Indices before window are NaN.
func RSI(closes []float64, window int) []float64 {
	out := nanSlice(len(closes))
	if window <= 0 || len(closes) <= window {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)
	out[window] = rsiValue(avgGain, avgLoss)

	for i := window + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// ATR computes a Wilder-smoothed average true range. Indices before window-1
// are NaN.
func ATR(bars []market.Bar, window int) []float64 {
	out := nanSlice(len(bars))
	if window <= 0 || len(bars) < window {
		return out
	}

	tr := trueRanges(bars)

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += tr[i]
	}
	out[window-1] = sum / float64(window)
	for i := window; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(window-1) + tr[i]) / float64(window)
	}
	return out
}

// ADX computes the average directional index over high/low/close using
// Wilder smoothing for the directional movements and for the DX average.
// The full warm-up is roughly two windows of bars.
func ADX(bars []market.Bar, window int) []float64 {
	out := nanSlice(len(bars))
	if window <= 0 || len(bars) < 2*window {
		return out
	}

	n := len(bars)
	tr := trueRanges(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder-smoothed sums seeded over the first window of movements.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= window; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSlice(n)
	dx[window] = dxValue(smPlus, smMinus, smTR)
	for i := window + 1; i < n; i++ {
		smTR = smTR - smTR/float64(window) + tr[i]
		smPlus = smPlus - smPlus/float64(window) + plusDM[i]
		smMinus = smMinus - smMinus/float64(window) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	sum := 0.0
	for i := window; i < 2*window; i++ {
		sum += dx[i]
	}
	out[2*window-1] = sum / float64(window)
	for i := 2 * window; i < n; i++ {
		out[i] = (out[i-1]*float64(window-1) + dx[i]) / float64(window)
	}
	return out
}

func dxValue(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plus / tr
	minusDI := 100 * minus / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

func trueRanges(bars []market.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low,
			math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return tr
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
