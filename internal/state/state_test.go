package state

import (
	"testing"
	"time"
)

func TestGateCreatedOnFirstUse(t *testing.T) {
	s := NewStore()
	g := s.Gate("AAPL")
	if g == nil {
		t.Fatalf("expected a gate state")
	}
	if got := s.Gate("AAPL"); got != g {
		t.Fatalf("expected the same state on repeat lookup")
	}
	if s.Gate("MSFT") == g {
		t.Fatalf("symbols must not share state")
	}
}

func TestObserveBarAdvancement(t *testing.T) {
	s := NewStore()
	t0 := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

	// The first observation establishes a baseline without an advance.
	if s.ObserveBar("AAPL", t0) {
		t.Fatalf("first observation is not an advance")
	}
	// The same bar seen again is not an advance.
	if s.ObserveBar("AAPL", t0) {
		t.Fatalf("repeated bar is not an advance")
	}
	if !s.ObserveBar("AAPL", t0.Add(5*time.Minute)) {
		t.Fatalf("a newer bar is an advance")
	}
	// An out-of-order older bar never rolls the marker back.
	if s.ObserveBar("AAPL", t0) {
		t.Fatalf("an older bar is not an advance")
	}
	if !s.ObserveBar("AAPL", t0.Add(10*time.Minute)) {
		t.Fatalf("expected the marker kept at the newest bar")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Gate("AAPL").TradesToday = 2

	snap := s.Snapshot()
	if snap["AAPL"].TradesToday != 2 {
		t.Fatalf("expected snapshot to carry current state")
	}

	entry := snap["AAPL"]
	entry.TradesToday = 99
	snap["AAPL"] = entry
	if s.Gate("AAPL").TradesToday != 2 {
		t.Fatalf("mutating the snapshot must not touch the store")
	}
}
