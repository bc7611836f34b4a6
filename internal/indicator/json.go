package indicator

import (
	"encoding/json"
	"math"
)

// MarshalJSON encodes unknown (NaN) values as null so decision snapshots
// remain valid JSON.
func (v Values) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*float64{
		"ema_fast":    nilIfNaN(v.EMAFast),
		"ema_slow":    nilIfNaN(v.EMASlow),
		"macd_line":   nilIfNaN(v.MACDLine),
		"macd_signal": nilIfNaN(v.MACDSignal),
		"macd_hist":   nilIfNaN(v.MACDHist),
		"rsi":         nilIfNaN(v.RSI),
		"adx":         nilIfNaN(v.ADX),
		"atr":         nilIfNaN(v.ATR),
		"atr_pct":     nilIfNaN(v.ATRPct),
		"vol_sma":     nilIfNaN(v.VolSMA),
	})
}

func nilIfNaN(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
