package broker

import (
	"testing"
	"time"
)

func TestClockExtendedHours(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2024, 3, 4, hour, 30, 0, 0, time.UTC)
	}
	cases := []struct {
		name  string
		clock Clock
		want  bool
	}{
		{"market open", Clock{IsOpen: true, Timestamp: at(10)}, false},
		{"pre-market", Clock{IsOpen: false, Timestamp: at(7)}, true},
		{"after-hours", Clock{IsOpen: false, Timestamp: at(18)}, true},
		{"session start", Clock{IsOpen: false, Timestamp: at(4)}, true},
		{"overnight", Clock{IsOpen: false, Timestamp: at(2)}, false},
		{"session end", Clock{IsOpen: false, Timestamp: at(20)}, false},
		{"late night", Clock{IsOpen: false, Timestamp: at(23)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.clock.ExtendedHours(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestOrderRequestBracket(t *testing.T) {
	stop, take := 98.0, 103.0
	if (OrderRequest{}).Bracket() {
		t.Fatalf("empty request is not a bracket")
	}
	if (OrderRequest{StopPrice: &stop}).Bracket() {
		t.Fatalf("a lone stop leg is not a bracket")
	}
	if !(OrderRequest{StopPrice: &stop, TakeProfit: &take}).Bracket() {
		t.Fatalf("both legs set must report a bracket")
	}
}
