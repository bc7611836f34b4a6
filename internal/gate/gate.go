// Package gate enforces trade-frequency limits: session windows, daily trade
// counts, cooldown after an entry, and minimum bar spacing between entries.
package gate

import (
	"fmt"
	"time"

	"fusion/internal/market"
)

// NoRecentEntry is the bars-since-entry sentinel used when no entry has been
// recorded or the recorded entry predates the current data window.
const NoRecentEntry = 100000

type Config struct {
	SessionStart    string // "09:30", inclusive
	SessionEnd      string // "16:00", inclusive
	MaxTradesPerDay int
	UseCooldown     bool
	CooldownBars    int
}

// State is the per-symbol mutable gate state. It lives for the strategy
// lifetime and is never persisted. The entry marker is a bar timestamp, not a
// positional index, so it stays valid when the fetch window shifts between
// cycles.
type State struct {
	LastEntryTime time.Time `json:"last_entry_time"`
	TradesToday   int       `json:"trades_today"`
	CooldownLeft  int       `json:"cooldown_left"`
	Day           time.Time `json:"day"`
}

type Result struct {
	InSession      bool
	Cooling        bool
	CanTradeToday  bool
	BarsSinceEntry int
}

// Roll resets the daily counter and any remaining cooldown when the calendar
// date changes. The comparison uses the wall-clock date in now's own zone,
// matching the session window, so the reset lands at local midnight rather
// than the UTC day boundary.
func (s *State) Roll(now time.Time) {
	y, m, d := now.Date()
	py, pm, pd := s.Day.Date()
	if y != py || m != pm || d != pd {
		s.Day = now
		s.TradesToday = 0
		s.CooldownLeft = 0
	}
}

// RecordEntry marks an executed entry at the given bar timestamp.
func (s *State) RecordEntry(barTime, now time.Time, cfg Config) {
	s.Roll(now)
	s.LastEntryTime = barTime
	s.TradesToday++
	if cfg.UseCooldown {
		s.CooldownLeft = cfg.CooldownBars
	}
}

// AdvanceBar ages the cooldown by one bar. The orchestrator calls it once per
// cycle in which the latest bar timestamp has advanced.
func (s *State) AdvanceBar() {
	if s.CooldownLeft > 0 {
		s.CooldownLeft--
	}
}

// Evaluate computes the gate filters for the current cycle.
func Evaluate(now time.Time, bars []market.Bar, s *State, cfg Config) (Result, error) {
	s.Roll(now)

	inSession, err := InSession(now, cfg.SessionStart, cfg.SessionEnd)
	if err != nil {
		return Result{}, err
	}

	return Result{
		InSession:      inSession,
		Cooling:        cfg.UseCooldown && s.CooldownLeft > 0,
		CanTradeToday:  s.TradesToday < cfg.MaxTradesPerDay,
		BarsSinceEntry: s.BarsSinceEntry(bars),
	}, nil
}

// BarsSinceEntry counts bars strictly after the recorded entry timestamp.
// It returns the NoRecentEntry sentinel when no entry is recorded or the
// entry predates the first bar of the window.
func (s *State) BarsSinceEntry(bars []market.Bar) int {
	if s.LastEntryTime.IsZero() || len(bars) == 0 {
		return NoRecentEntry
	}
	if s.LastEntryTime.Before(bars[0].Timestamp) {
		return NoRecentEntry
	}
	count := 0
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Timestamp.After(s.LastEntryTime) {
			break
		}
		count++
	}
	return count
}

// InSession reports whether now falls within the [start, end] minute-of-day
// window, inclusive on both ends. Local wall clock only.
func InSession(now time.Time, start, end string) (bool, error) {
	startMin, err := parseMinuteOfDay(start)
	if err != nil {
		return false, fmt.Errorf("session start: %w", err)
	}
	endMin, err := parseMinuteOfDay(end)
	if err != nil {
		return false, fmt.Errorf("session end: %w", err)
	}
	cur := now.Hour()*60 + now.Minute()
	return startMin <= cur && cur <= endMin, nil
}

func parseMinuteOfDay(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return h*60 + m, nil
}
