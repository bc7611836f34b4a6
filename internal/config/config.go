// Package config loads the typed strategy configuration: YAML file first,
// then environment overrides. Every recognized option has a default;
// validation runs once at construction.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fusion/internal/market"
)

type Config struct {
	Alpaca struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url"`
		Feed      string `yaml:"feed"`
	} `yaml:"alpaca"`

	Strategy struct {
		Symbols      []string `yaml:"symbols"`
		Timeframe    string   `yaml:"timeframe"`
		BarsLookback int      `yaml:"bars_lookback"`

		EMAFastLen int `yaml:"ema_fast_len"`
		EMASlowLen int `yaml:"ema_slow_len"`
		MACDFast   int `yaml:"macd_fast"`
		MACDSlow   int `yaml:"macd_slow"`
		MACDSignal int `yaml:"macd_signal"`
		RSILen     int `yaml:"rsi_len"`
		ADXLen     int `yaml:"adx_len"`
		ATRLen     int `yaml:"atr_len"`

		RSILongMin  float64 `yaml:"rsi_long_min"`
		RSILongMax  float64 `yaml:"rsi_long_max"`
		RSIShortMin float64 `yaml:"rsi_short_min"`
		RSIShortMax float64 `yaml:"rsi_short_max"`
		ADXMin      float64 `yaml:"adx_min"`
		MinATRPct   float64 `yaml:"min_atr_pct"`

		VolFilterOn bool    `yaml:"vol_filter_on"`
		VolSMALen   int     `yaml:"vol_sma_len"`
		VolMinMult  float64 `yaml:"vol_min_mult"`

		UseHTFTrend  bool   `yaml:"use_htf_trend"`
		HTFTimeframe string `yaml:"htf_timeframe"`

		SessionStart string `yaml:"trade_session_start"`
		SessionEnd   string `yaml:"trade_session_end"`
		MinBarsGap   int    `yaml:"min_bars_gap"`
		MaxTradesDay int    `yaml:"max_trades_day"`
		UseCooldown  bool   `yaml:"use_cooldown"`
		CooldownBars int    `yaml:"cooldown_bars"`
	} `yaml:"strategy"`

	Risk struct {
		UseFixedRisk bool    `yaml:"use_fixed_risk"`
		RiskPct      float64 `yaml:"risk_pct"`
		ATRMultSL    float64 `yaml:"atr_mult_sl"`
		FallbackPct  float64 `yaml:"fallback_pct"`
		AccountSize  float64 `yaml:"account_size"`
	} `yaml:"risk"`

	Exec struct {
		BuyingPowerPct float64 `yaml:"buying_power_pct"`
		StopLossPct    float64 `yaml:"stop_loss_pct"`
		TakeProfitPct  float64 `yaml:"take_profit_pct"`
		WaitForFill    bool    `yaml:"wait_for_fill"`
		MaxSlippagePct float64 `yaml:"max_slippage_pct"`
	} `yaml:"exec"`

	Engine struct {
		CycleCron      string `yaml:"cycle_cron"`
		AllowSynthetic bool   `yaml:"allow_synthetic"`
		DecisionsPath  string `yaml:"decisions_path"`
		SQLitePath     string `yaml:"sqlite_path"`
	} `yaml:"engine"`
}

// Load reads the YAML file at path (missing file is fine, defaults apply),
// then applies environment overrides. A .env file in the working directory is
// loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	applyDefaults(cfg)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	cfg.Alpaca.Feed = "iex"

	s := &cfg.Strategy
	s.Symbols = []string{"ASTS", "AAPL"}
	s.Timeframe = "1D"
	s.BarsLookback = 200
	s.EMAFastLen = 50
	s.EMASlowLen = 200
	s.MACDFast = 12
	s.MACDSlow = 26
	s.MACDSignal = 9
	s.RSILen = 14
	s.ADXLen = 14
	s.ATRLen = 14
	s.RSILongMin = 50
	s.RSILongMax = 80
	s.RSIShortMin = 20
	s.RSIShortMax = 50
	s.ADXMin = 16
	s.MinATRPct = 0.20
	s.VolFilterOn = true
	s.VolSMALen = 50
	s.VolMinMult = 1.0
	s.UseHTFTrend = true
	s.HTFTimeframe = "1h"
	s.SessionStart = "09:30"
	s.SessionEnd = "16:00"
	s.MinBarsGap = 3
	s.MaxTradesDay = 10
	s.UseCooldown = true
	s.CooldownBars = 10

	cfg.Risk.UseFixedRisk = true
	cfg.Risk.RiskPct = 0.5
	cfg.Risk.ATRMultSL = 1.5
	cfg.Risk.FallbackPct = 5.0
	cfg.Risk.AccountSize = 10_000

	cfg.Exec.BuyingPowerPct = 0.10
	cfg.Exec.WaitForFill = true

	cfg.Engine.CycleCron = "0 */5 * * * *"
	cfg.Engine.AllowSynthetic = false
	cfg.Engine.DecisionsPath = "decisions.ndjson"
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("FUSION_SYMBOLS"); v != "" {
		cfg.Strategy.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("FUSION_TIMEFRAME"); v != "" {
		cfg.Strategy.Timeframe = v
	}
	if v := os.Getenv("FUSION_CYCLE_CRON"); v != "" {
		cfg.Engine.CycleCron = v
	}
	if v := os.Getenv("FUSION_SQLITE_PATH"); v != "" {
		cfg.Engine.SQLitePath = v
	}
}

func splitSymbols(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the loaded configuration. Missing credentials are fatal:
// the strategy is disabled entirely rather than partially running.
func (c *Config) Validate() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	s := c.Strategy
	for name, v := range map[string]int{
		"ema_fast_len": s.EMAFastLen,
		"ema_slow_len": s.EMASlowLen,
		"macd_fast":    s.MACDFast,
		"macd_slow":    s.MACDSlow,
		"macd_signal":  s.MACDSignal,
		"rsi_len":      s.RSILen,
		"adx_len":      s.ADXLen,
		"atr_len":      s.ATRLen,
	} {
		if v <= 1 {
			return fmt.Errorf("%s must be > 1", name)
		}
	}
	if s.VolFilterOn && s.VolSMALen <= 1 {
		return fmt.Errorf("vol_sma_len must be > 1 when vol_filter_on is set")
	}
	if !market.SupportedTimeframe(s.Timeframe) {
		return fmt.Errorf("unsupported timeframe: %s", s.Timeframe)
	}
	if s.UseHTFTrend && !market.SupportedTimeframe(s.HTFTimeframe) {
		return fmt.Errorf("unsupported htf_timeframe: %s", s.HTFTimeframe)
	}
	if s.EMAFastLen >= s.EMASlowLen {
		return fmt.Errorf("ema_fast_len must be < ema_slow_len")
	}
	if s.BarsLookback < s.EMASlowLen {
		return fmt.Errorf("bars_lookback must be >= ema_slow_len")
	}
	if s.MaxTradesDay <= 0 {
		return fmt.Errorf("max_trades_day must be > 0")
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 100 {
		return fmt.Errorf("risk_pct must be in (0, 100]")
	}
	if c.Risk.FallbackPct <= 0 || c.Risk.FallbackPct > 100 {
		return fmt.Errorf("fallback_pct must be in (0, 100]")
	}
	if c.Exec.BuyingPowerPct <= 0 || c.Exec.BuyingPowerPct > 1 {
		return fmt.Errorf("buying_power_pct must be in (0, 1]")
	}
	if (c.Exec.StopLossPct > 0) != (c.Exec.TakeProfitPct > 0) {
		return fmt.Errorf("stop_loss_pct and take_profit_pct must be set together")
	}
	return nil
}
