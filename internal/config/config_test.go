package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setCreds(t *testing.T) {
	t.Helper()
	t.Setenv("APCA_API_KEY_ID", "key")
	t.Setenv("APCA_API_SECRET_KEY", "secret")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fusion.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	setCreds(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("a missing file must fall back to defaults: %v", err)
	}

	if len(cfg.Strategy.Symbols) == 0 {
		t.Fatalf("expected default symbols")
	}
	if cfg.Strategy.Timeframe != "1D" {
		t.Fatalf("expected default timeframe 1D, got %s", cfg.Strategy.Timeframe)
	}
	if cfg.Strategy.EMAFastLen != 50 || cfg.Strategy.EMASlowLen != 200 {
		t.Fatalf("unexpected default EMA lengths: %d/%d", cfg.Strategy.EMAFastLen, cfg.Strategy.EMASlowLen)
	}
	if cfg.Strategy.MaxTradesDay != 10 || cfg.Strategy.CooldownBars != 10 {
		t.Fatalf("unexpected default gate values")
	}
	if cfg.Risk.RiskPct != 0.5 || cfg.Risk.ATRMultSL != 1.5 || cfg.Risk.FallbackPct != 5.0 {
		t.Fatalf("unexpected default risk values: %+v", cfg.Risk)
	}
	if !cfg.Exec.WaitForFill || cfg.Exec.BuyingPowerPct != 0.10 {
		t.Fatalf("unexpected default exec values: %+v", cfg.Exec)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	setCreds(t)
	path := writeConfig(t, `
strategy:
  symbols: [MSFT]
  timeframe: "1h"
  ema_fast_len: 20
  ema_slow_len: 60
  bars_lookback: 100
risk:
  risk_pct: 1.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Strategy.Symbols) != 1 || cfg.Strategy.Symbols[0] != "MSFT" {
		t.Fatalf("expected symbols from file, got %v", cfg.Strategy.Symbols)
	}
	if cfg.Strategy.EMAFastLen != 20 || cfg.Strategy.EMASlowLen != 60 {
		t.Fatalf("expected EMA lengths from file")
	}
	if cfg.Risk.RiskPct != 1.0 {
		t.Fatalf("expected risk_pct from file, got %v", cfg.Risk.RiskPct)
	}
	// Untouched sections keep their defaults.
	if cfg.Strategy.RSILen != 14 || cfg.Risk.ATRMultSL != 1.5 {
		t.Fatalf("expected unrelated defaults preserved")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setCreds(t)
	t.Setenv("FUSION_SYMBOLS", "NVDA, BTC/USD ,")
	t.Setenv("FUSION_TIMEFRAME", "1h")
	t.Setenv("APCA_API_BASE_URL", "https://api.example.test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"NVDA", "BTC/USD"}
	if len(cfg.Strategy.Symbols) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Strategy.Symbols)
	}
	for i, s := range want {
		if cfg.Strategy.Symbols[i] != s {
			t.Fatalf("expected %v, got %v", want, cfg.Strategy.Symbols)
		}
	}
	if cfg.Strategy.Timeframe != "1h" {
		t.Fatalf("expected timeframe override")
	}
	if cfg.Alpaca.BaseURL != "https://api.example.test" {
		t.Fatalf("expected base URL override, got %s", cfg.Alpaca.BaseURL)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("APCA_API_SECRET_KEY", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing credentials must disable the strategy")
	}
}

func TestValidateRejections(t *testing.T) {
	setCreds(t)
	cases := []struct {
		name string
		yaml string
	}{
		{"fast ema not below slow", "strategy:\n  ema_fast_len: 200\n  ema_slow_len: 200\n"},
		{"lookback below slow ema", "strategy:\n  bars_lookback: 100\n"},
		{"no symbols", "strategy:\n  symbols: []\n"},
		{"zero trades per day", "strategy:\n  max_trades_day: 0\n"},
		{"risk pct out of range", "risk:\n  risk_pct: 101\n"},
		{"vol sma too short for filter", "strategy:\n  vol_sma_len: 0\n"},
		{"unsupported timeframe", "strategy:\n  timeframe: 2D\n"},
		{"unsupported htf timeframe", "strategy:\n  htf_timeframe: 3d\n"},
		{"buying power out of range", "exec:\n  buying_power_pct: 1.5\n"},
		{"lone stop loss", "exec:\n  stop_loss_pct: 0.02\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestVolSMALenUncheckedWhenFilterOff(t *testing.T) {
	setCreds(t)
	if _, err := Load(writeConfig(t, "strategy:\n  vol_filter_on: false\n  vol_sma_len: 0\n")); err != nil {
		t.Fatalf("vol_sma_len is unused with the filter off: %v", err)
	}
}

func TestBracketLegsTogetherIsValid(t *testing.T) {
	setCreds(t)
	cfg, err := Load(writeConfig(t, "exec:\n  stop_loss_pct: 0.02\n  take_profit_pct: 0.03\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exec.StopLossPct != 0.02 || cfg.Exec.TakeProfitPct != 0.03 {
		t.Fatalf("unexpected bracket config: %+v", cfg.Exec)
	}
}
