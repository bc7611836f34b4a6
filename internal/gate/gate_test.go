package gate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"fusion/internal/market"
)

func barsAt(times ...time.Time) []market.Bar {
	bars := make([]market.Bar, len(times))
	for i, ts := range times {
		bars[i] = market.Bar{Timestamp: ts, Close: 100}
	}
	return bars
}

func TestInSessionInclusiveBounds(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 4, 9, 29, 0, 0, time.UTC), false},
		{"at open", time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), true},
		{"midday", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), true},
		{"at close", time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC), true},
		{"after close", time.Date(2024, 3, 4, 16, 1, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := InSession(tc.at, "09:30", "16:00")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestInSessionInvalidFormat(t *testing.T) {
	for _, v := range []string{"nope", "25:00", "09:75", ""} {
		if _, err := InSession(time.Now(), v, "16:00"); err == nil {
			t.Fatalf("expected error for start %q", v)
		}
	}
}

func TestDailyTradeLimit(t *testing.T) {
	cfg := Config{SessionStart: "00:00", SessionEnd: "23:59", MaxTradesPerDay: 10}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	s := &State{}

	for i := 0; i < 10; i++ {
		res, err := Evaluate(now, nil, s, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.CanTradeToday {
			t.Fatalf("expected trade %d to be allowed", i+1)
		}
		s.RecordEntry(now, now, cfg)
	}

	res, err := Evaluate(now, nil, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanTradeToday {
		t.Fatalf("expected the 11th trade of the day to be blocked")
	}
}

func TestDailyCounterRollsOver(t *testing.T) {
	cfg := Config{SessionStart: "00:00", SessionEnd: "23:59", MaxTradesPerDay: 1, UseCooldown: true, CooldownBars: 10}
	day1 := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	s := &State{}
	s.RecordEntry(day1, day1, cfg)

	res, err := Evaluate(day1, nil, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanTradeToday || !res.Cooling {
		t.Fatalf("expected blocked and cooling on day one: %+v", res)
	}

	day2 := day1.AddDate(0, 0, 1)
	res, err = Evaluate(day2, nil, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanTradeToday {
		t.Fatalf("expected daily counter reset after rollover")
	}
	if res.Cooling {
		t.Fatalf("expected cooldown cleared after rollover")
	}
}

func TestDailyCounterKeyedToLocalCalendarDay(t *testing.T) {
	aest := time.FixedZone("AEST", 10*60*60)
	cfg := Config{SessionStart: "00:00", SessionEnd: "23:59", MaxTradesPerDay: 1, UseCooldown: true, CooldownBars: 10}

	// 09:00 local is still the previous day in UTC; trading through the
	// UTC midnight boundary must not reset the counters.
	morning := time.Date(2024, 3, 4, 9, 0, 0, 0, aest)
	s := &State{}
	s.RecordEntry(morning, morning, cfg)

	later := morning.Add(2 * time.Hour)
	res, err := Evaluate(later, nil, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanTradeToday {
		t.Fatalf("daily counter reset mid local calendar day: %+v", res)
	}
	if !res.Cooling {
		t.Fatalf("cooldown cleared mid local calendar day: %+v", res)
	}

	// Local midnight, still the same UTC day, is the real rollover.
	nextDay := time.Date(2024, 3, 5, 0, 30, 0, 0, aest)
	res, err = Evaluate(nextDay, nil, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanTradeToday || res.Cooling {
		t.Fatalf("expected reset at local midnight: %+v", res)
	}
}

func TestCooldownAges(t *testing.T) {
	cfg := Config{UseCooldown: true, CooldownBars: 3}
	now := time.Now()
	s := &State{}
	s.RecordEntry(now, now, cfg)

	if s.CooldownLeft != 3 {
		t.Fatalf("expected cooldown 3, got %d", s.CooldownLeft)
	}
	for i := 0; i < 3; i++ {
		s.AdvanceBar()
	}
	if s.CooldownLeft != 0 {
		t.Fatalf("expected cooldown drained, got %d", s.CooldownLeft)
	}
	s.AdvanceBar()
	if s.CooldownLeft != 0 {
		t.Fatalf("cooldown must not go negative")
	}
}

func TestBarsSinceEntry(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }
	window := barsAt(ts(0), ts(1), ts(2), ts(3), ts(4))

	cases := []struct {
		name  string
		entry time.Time
		want  int
	}{
		{"no entry recorded", time.Time{}, NoRecentEntry},
		{"entry before window", base.Add(-time.Hour), NoRecentEntry},
		{"entry at latest bar", ts(4), 0},
		{"entry three bars back", ts(1), 3},
		{"entry at first bar", ts(0), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &State{LastEntryTime: tc.entry}
			if got := s.BarsSinceEntry(window); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestStateSerializesSnakeCase(t *testing.T) {
	payload, err := json.Marshal(State{TradesToday: 2, CooldownLeft: 3})
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	for _, key := range []string{"last_entry_time", "trades_today", "cooldown_left", "day"} {
		if !strings.Contains(string(payload), `"`+key+`"`) {
			t.Fatalf("expected key %q in %s", key, payload)
		}
	}
}

func TestBarsSinceEntrySurvivesWindowShift(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	s := &State{LastEntryTime: ts(2)}
	if got := s.BarsSinceEntry(barsAt(ts(0), ts(1), ts(2), ts(3))); got != 1 {
		t.Fatalf("expected 1 in original window, got %d", got)
	}
	// The fetch window slides forward by one bar; the count is unchanged
	// relative to the entry timestamp plus the new bar.
	if got := s.BarsSinceEntry(barsAt(ts(1), ts(2), ts(3), ts(4))); got != 2 {
		t.Fatalf("expected 2 after window shift, got %d", got)
	}
}
