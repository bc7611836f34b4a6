// Package engine runs the strategy cycle: fetch bars, compute indicators,
// evaluate the signal, size and execute orders, and record outcomes. Symbols
// are processed independently; one symbol's failure never aborts the batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math"
	"sync"
	"time"

	"fusion/internal/broker"
	"fusion/internal/config"
	"fusion/internal/exec"
	"fusion/internal/gate"
	"fusion/internal/indicator"
	"fusion/internal/market"
	"fusion/internal/recorder"
	"fusion/internal/risk"
	"fusion/internal/state"
	"fusion/internal/strategy"
)

// Broker is the full broker contract the orchestrator needs.
type Broker interface {
	exec.Broker
	Account(ctx context.Context) (broker.Account, error)
	OpenPosition(ctx context.Context, symbol string) (*broker.Position, error)
	Clock(ctx context.Context) (broker.Clock, error)
	LatestQuote(ctx context.Context, symbol, assetClass string) (broker.Quote, error)
}

// Execution is what happened to a non-HOLD decision.
type Execution struct {
	Status      string  `json:"status"` // "executed", "skipped", "rejected", "unknown"
	Qty         int     `json:"qty,omitempty"`
	Notional    float64 `json:"notional,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`
	OrderStatus string  `json:"order_status,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// SymbolResult is one symbol's outcome within a cycle.
type SymbolResult struct {
	Symbol    string             `json:"symbol"`
	Status    string             `json:"status"` // "completed" or "error"
	Reason    string             `json:"reason,omitempty"`
	Synthetic bool               `json:"synthetic,omitempty"`
	Decision  *strategy.Decision `json:"decision,omitempty"`
	Execution *Execution         `json:"execution,omitempty"`
}

type CycleSummary struct {
	TotalSymbols int `json:"total_symbols"`
	Completed    int `json:"completed"`
	Errors       int `json:"errors"`
}

type CycleReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Results   []SymbolResult `json:"results"`
	Summary   CycleSummary   `json:"summary"`
}

const (
	statusCompleted = "completed"
	statusError     = "error"
)

type Engine struct {
	cfg       *config.Config
	data      market.Source
	synth     *market.Synthetic
	broker    Broker
	executor  *exec.Executor
	store     *state.Store
	decisions *DecisionLogger
	recorder  recorder.Recorder

	htfMu    sync.Mutex
	htfCache map[string]float64

	cycleMu sync.Mutex
}

func New(cfg *config.Config, data market.Source, brokerClient Broker, store *state.Store, decisions *DecisionLogger, rec recorder.Recorder) *Engine {
	return &Engine{
		cfg:       cfg,
		data:      data,
		synth:     market.NewSynthetic(time.Now().UnixNano()),
		broker:    brokerClient,
		executor:  exec.New(brokerClient),
		store:     store,
		decisions: decisions,
		recorder:  rec,
		htfCache:  map[string]float64{},
	}
}

// RunCycle processes every configured symbol once and aggregates a report.
// Cycles never overlap: a second caller blocks until the first finishes.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	// Higher-timeframe trend values are shared across symbols within one
	// cycle only; every cycle compares against fresh data.
	e.htfMu.Lock()
	e.htfCache = map[string]float64{}
	e.htfMu.Unlock()

	report := CycleReport{Timestamp: time.Now()}
	for _, symbol := range e.cfg.Strategy.Symbols {
		result := e.processSymbol(ctx, symbol)
		report.Results = append(report.Results, result)
		e.record(result, report.Timestamp)
	}

	report.Summary.TotalSymbols = len(report.Results)
	for _, r := range report.Results {
		if r.Status == statusError {
			report.Summary.Errors++
		} else {
			report.Summary.Completed++
		}
	}
	log.Printf("cycle completed: %d symbols, %d completed, %d errors",
		report.Summary.TotalSymbols, report.Summary.Completed, report.Summary.Errors)
	return report
}

func (e *Engine) processSymbol(ctx context.Context, symbol string) SymbolResult {
	result := SymbolResult{Symbol: symbol, Status: statusCompleted}

	bars, err := e.data.Bars(ctx, symbol, e.cfg.Strategy.Timeframe, e.cfg.Strategy.BarsLookback)
	if err != nil || len(bars) == 0 {
		if !e.cfg.Engine.AllowSynthetic {
			return SymbolResult{Symbol: symbol, Status: statusError, Reason: fmt.Sprintf("no market data: %v", err)}
		}
		slog.Warn("falling back to synthetic data", "symbol", symbol, "error", err)
		bars = e.synth.Generate(symbol, e.cfg.Strategy.Timeframe, e.cfg.Strategy.BarsLookback)
		result.Synthetic = true
	}

	indCfg := e.indicatorConfig()
	set := indicator.Compute(bars, indCfg)

	gateState := e.store.Gate(symbol)
	lastBar := bars[len(bars)-1]
	if !result.Synthetic && e.store.ObserveBar(symbol, lastBar.Timestamp) {
		gateState.AdvanceBar()
	}

	now := time.Now()
	gateResult, err := gate.Evaluate(now, bars, gateState, e.gateConfig())
	if err != nil {
		return SymbolResult{Symbol: symbol, Status: statusError, Reason: fmt.Sprintf("gate: %v", err)}
	}

	htf := math.NaN()
	if e.cfg.Strategy.UseHTFTrend {
		htf = e.htfEMA200(ctx, symbol)
	}

	decision := strategy.Evaluate(strategy.Inputs{
		Bars:       bars,
		Indicators: set,
		HTFEMA200:  htf,
		Gate:       gateResult,
		MinBars:    indCfg.MaxLookback(),
	}, e.strategyConfig())
	result.Decision = &decision

	record := DecisionRecord{
		Timestamp: now,
		Symbol:    symbol,
		Synthetic: result.Synthetic,
		Decision:  decision,
		Result:    "hold",
	}

	if decision.Signal == strategy.Hold {
		e.decisions.Append(record)
		log.Printf("%s: HOLD (%v)", symbol, decision.Reasons)
		return result
	}

	execution := e.execute(ctx, symbol, gateState, lastBar, decision)
	result.Execution = execution

	record.Result = execution.Status
	record.Qty = execution.Qty
	record.OrderID = execution.OrderID
	record.Error = execution.Reason
	e.decisions.Append(record)

	if execution.Status == "unknown" || execution.Status == "rejected" {
		result.Status = statusError
		result.Reason = execution.Reason
	}
	return result
}

// execute runs the order half of a non-HOLD decision: account and position
// checks, close-before-reverse, sizing, and the submit/poll protocol.
func (e *Engine) execute(ctx context.Context, symbol string, gateState *gate.State, lastBar market.Bar, decision strategy.Decision) *Execution {
	acct, err := e.broker.Account(ctx)
	if err != nil {
		return &Execution{Status: "unknown", Reason: fmt.Sprintf("account fetch failed: %v", err)}
	}

	if err := risk.AllowNewEntry(acct.DayTradeCount, acct.Equity); err != nil {
		return &Execution{Status: "skipped", Reason: err.Error()}
	}

	side := "buy"
	wantSide := "long"
	if decision.Signal == strategy.Sell {
		side = "sell"
		wantSide = "short"
	}

	position, err := e.broker.OpenPosition(ctx, symbol)
	if err != nil {
		// A failed lookup is not "no position"; submitting blind could
		// double the exposure.
		return &Execution{Status: "unknown", Reason: fmt.Sprintf("position lookup failed: %v", err)}
	}
	if position != nil {
		if position.Side == wantSide {
			return &Execution{Status: "skipped", Reason: "position already " + wantSide}
		}
		closed, err := e.executor.Close(ctx, symbol, true)
		if err != nil {
			return &Execution{Status: "unknown", Reason: fmt.Sprintf("close before reverse failed: %v", err)}
		}
		if !exec.IsTerminal(closed.Status) {
			slog.Warn("close order not terminal before reversal", "symbol", symbol, "status", closed.Status)
		}
	}

	if reason := e.slippageCheck(ctx, symbol, side, decision.Price); reason != "" {
		return &Execution{Status: "rejected", Reason: reason}
	}

	extendedHours := false
	if clock, err := e.broker.Clock(ctx); err == nil {
		extendedHours = clock.ExtendedHours()
	} else {
		slog.Warn("clock fetch failed, assuming regular hours", "error", err)
	}

	qty := risk.Shares(decision.Price, decision.Indicators.ATR, acct.Equity, e.sizerConfig())

	assetClass := "stock"
	if market.IsCrypto(symbol) {
		assetClass = "crypto"
	}

	req, err := exec.BuildOrder(exec.Intent{
		Symbol:         symbol,
		Side:           side,
		Price:          decision.Price,
		High:           lastBar.High,
		Qty:            qty,
		BuyingPowerPct: e.cfg.Exec.BuyingPowerPct,
		AssetClass:     assetClass,
		StopLossPct:    e.cfg.Exec.StopLossPct,
		TakeProfitPct:  e.cfg.Exec.TakeProfitPct,
	}, acct, extendedHours)
	if err != nil {
		if errors.Is(err, exec.ErrInvalidOrderSizing) {
			return &Execution{Status: "rejected", Reason: err.Error()}
		}
		return &Execution{Status: "unknown", Reason: fmt.Sprintf("order build failed: %v", err)}
	}

	order, err := e.executor.Submit(ctx, req, e.cfg.Exec.WaitForFill)
	if err != nil {
		return &Execution{Status: "unknown", Reason: fmt.Sprintf("order failed: %v", err)}
	}

	gateState.RecordEntry(lastBar.Timestamp, time.Now(), e.gateConfig())
	log.Printf("%s: %s executed order_id=%s status=%s", symbol, decision.Signal, order.ID, order.Status)

	// Report the sizing that was actually submitted: a share quantity for
	// bracket and extended-hours orders, a dollar notional otherwise.
	execution := &Execution{
		Status:      "executed",
		OrderID:     order.ID,
		OrderStatus: order.Status,
		Price:       decision.Price,
	}
	if req.Qty != nil {
		execution.Qty = int(*req.Qty)
	}
	if req.Notional != nil {
		execution.Notional = *req.Notional
	}
	return execution
}

// slippageCheck compares the live quote against the decision price. It is
// advisory: a quote failure never blocks the order.
func (e *Engine) slippageCheck(ctx context.Context, symbol, side string, price float64) string {
	maxPct := e.cfg.Exec.MaxSlippagePct
	if maxPct <= 0 {
		return ""
	}
	assetClass := "stock"
	if market.IsCrypto(symbol) {
		assetClass = "crypto"
	}
	quote, err := e.broker.LatestQuote(ctx, symbol, assetClass)
	if err != nil {
		slog.Warn("quote fetch failed, skipping slippage check", "symbol", symbol, "error", err)
		return ""
	}
	if side == "buy" && quote.Ask > price*(1+maxPct/100) {
		return fmt.Sprintf("ask %.2f exceeds slippage budget from %.2f", quote.Ask, price)
	}
	if side == "sell" && quote.Bid > 0 && quote.Bid < price*(1-maxPct/100) {
		return fmt.Sprintf("bid %.2f below slippage budget from %.2f", quote.Bid, price)
	}
	return ""
}

// htfEMA200 returns the latest 200-period EMA on the higher timeframe, NaN
// when unavailable. Values are cached for the remainder of the cycle.
func (e *Engine) htfEMA200(ctx context.Context, symbol string) float64 {
	e.htfMu.Lock()
	if v, ok := e.htfCache[symbol]; ok {
		e.htfMu.Unlock()
		return v
	}
	e.htfMu.Unlock()

	bars, err := e.data.Bars(ctx, symbol, e.cfg.Strategy.HTFTimeframe, 250)
	if err != nil {
		slog.Warn("htf fetch failed, skipping trend filter", "symbol", symbol, "error", err)
		return math.NaN()
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ema := indicator.EMA(closes, 200)
	v := ema[len(ema)-1]
	if math.IsNaN(v) {
		return v
	}

	e.htfMu.Lock()
	e.htfCache[symbol] = v
	e.htfMu.Unlock()
	return v
}

func (e *Engine) record(result SymbolResult, ts time.Time) {
	rec := &recorder.CycleResult{
		RunID:     e.decisions.RunID(),
		Timestamp: ts,
		Symbol:    result.Symbol,
		Status:    result.Status,
		Synthetic: result.Synthetic,
		Reason:    result.Reason,
	}
	if result.Decision != nil {
		rec.Signal = string(result.Decision.Signal)
		rec.Price = result.Decision.Price
	}
	if result.Execution != nil {
		rec.Qty = result.Execution.Qty
		rec.OrderID = result.Execution.OrderID
	}
	if err := e.recorder.RecordResult(rec); err != nil {
		log.Printf("record cycle result: %v", err)
	}
}

// Status is the snapshot exposed to the orchestrating layer.
type Status struct {
	RunID       string                `json:"run_id"`
	Symbols     []string              `json:"symbols"`
	Timeframe   string                `json:"timeframe"`
	RiskPct     float64               `json:"risk_pct"`
	ATRMultSL   float64               `json:"atr_mult_sl"`
	MaxTrades   int                   `json:"max_trades_day"`
	GateStates  map[string]gate.State `json:"gate_states"`
	GeneratedAt time.Time             `json:"generated_at"`
}

func (e *Engine) Status() Status {
	return Status{
		RunID:       e.decisions.RunID(),
		Symbols:     e.cfg.Strategy.Symbols,
		Timeframe:   e.cfg.Strategy.Timeframe,
		RiskPct:     e.cfg.Risk.RiskPct,
		ATRMultSL:   e.cfg.Risk.ATRMultSL,
		MaxTrades:   e.cfg.Strategy.MaxTradesDay,
		GateStates:  e.store.Snapshot(),
		GeneratedAt: time.Now(),
	}
}

func (e *Engine) indicatorConfig() indicator.Config {
	s := e.cfg.Strategy
	return indicator.Config{
		EMAFast:    s.EMAFastLen,
		EMASlow:    s.EMASlowLen,
		MACDFast:   s.MACDFast,
		MACDSlow:   s.MACDSlow,
		MACDSignal: s.MACDSignal,
		RSI:        s.RSILen,
		ADX:        s.ADXLen,
		ATR:        s.ATRLen,
		VolSMA:     s.VolSMALen,
		VolFilter:  s.VolFilterOn,
	}
}

func (e *Engine) gateConfig() gate.Config {
	s := e.cfg.Strategy
	return gate.Config{
		SessionStart:    s.SessionStart,
		SessionEnd:      s.SessionEnd,
		MaxTradesPerDay: s.MaxTradesDay,
		UseCooldown:     s.UseCooldown,
		CooldownBars:    s.CooldownBars,
	}
}

func (e *Engine) strategyConfig() strategy.Config {
	s := e.cfg.Strategy
	return strategy.Config{
		RSILongMin:  s.RSILongMin,
		RSILongMax:  s.RSILongMax,
		RSIShortMin: s.RSIShortMin,
		RSIShortMax: s.RSIShortMax,
		ADXMin:      s.ADXMin,
		MinATRPct:   s.MinATRPct,
		VolFilter:   s.VolFilterOn,
		VolMinMult:  s.VolMinMult,
		MinBarsGap:  s.MinBarsGap,
		UseHTF:      s.UseHTFTrend,
	}
}

func (e *Engine) sizerConfig() risk.SizerConfig {
	return risk.SizerConfig{
		UseFixedRisk: e.cfg.Risk.UseFixedRisk,
		RiskPct:      e.cfg.Risk.RiskPct,
		ATRMultSL:    e.cfg.Risk.ATRMultSL,
		FallbackPct:  e.cfg.Risk.FallbackPct,
	}
}
