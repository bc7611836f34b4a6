package engine

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fusion/internal/strategy"
)

func TestDecisionLoggerWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	logger, err := NewDecisionLogger(path, "run-123")
	if err != nil {
		t.Fatalf("open logger: %v", err)
	}

	decision := strategy.Decision{
		Signal:    strategy.Buy,
		Reasons:   []string{"trend up", "momentum long", "all filters ok"},
		Price:     187.5,
		Timestamp: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC),
	}
	// Unknown indicator values must serialize as null, not break the line.
	decision.Indicators.RSI = math.NaN()
	decision.Indicators.EMAFast = 185.2

	logger.Append(DecisionRecord{Symbol: "AAPL", Decision: decision, Result: "executed", Qty: 33, OrderID: "o1"})
	logger.Append(DecisionRecord{Symbol: "MSFT", Decision: strategy.Decision{Signal: strategy.Hold}, Result: "hold"})
	if err := logger.Close(); err != nil {
		t.Fatalf("close logger: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid NDJSON line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first := lines[0]
	if first["run_id"] != "run-123" {
		t.Fatalf("expected the run id stamped on every record, got %v", first["run_id"])
	}
	if first["symbol"] != "AAPL" || first["result"] != "executed" {
		t.Fatalf("unexpected record: %v", first)
	}
	ind := first["decision"].(map[string]any)["indicators"].(map[string]any)
	if ind["rsi"] != nil {
		t.Fatalf("expected NaN serialized as null, got %v", ind["rsi"])
	}
	if ind["ema_fast"] != 185.2 {
		t.Fatalf("expected ema_fast 185.2, got %v", ind["ema_fast"])
	}
}

func TestDecisionLoggerAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")

	for _, runID := range []string{"run-1", "run-2"} {
		logger, err := NewDecisionLogger(path, runID)
		if err != nil {
			t.Fatalf("open logger: %v", err)
		}
		logger.Append(DecisionRecord{Symbol: "AAPL", Result: "hold"})
		if err := logger.Close(); err != nil {
			t.Fatalf("close logger: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected both runs appended, got %d lines", lines)
	}
}
