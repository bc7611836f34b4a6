// Package state owns the per-symbol gate state for the strategy lifetime.
// The store is safe for concurrent reads from the status surface while a
// cycle mutates it. Nothing here is persisted: trade-frequency limits are
// process-lifetime only.
package state

import (
	"sync"
	"time"

	"fusion/internal/gate"
)

type Store struct {
	mu      sync.RWMutex
	gates   map[string]*gate.State
	lastBar map[string]time.Time
}

func NewStore() *Store {
	return &Store{
		gates:   map[string]*gate.State{},
		lastBar: map[string]time.Time{},
	}
}

// Gate returns the gate state for a symbol, creating it on first use. The
// returned pointer is owned by the cycle that requested it; cycles never run
// concurrently, so no further locking is needed to mutate it.
func (s *Store) Gate(symbol string) *gate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.gates[symbol]
	if !ok {
		st = &gate.State{}
		s.gates[symbol] = st
	}
	return st
}

// ObserveBar records the latest bar timestamp for a symbol and reports
// whether it advanced past the previously observed one. The cooldown ages by
// one bar exactly when it did.
func (s *Store) ObserveBar(symbol string, barTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.lastBar[symbol]
	if seen && !barTime.After(prev) {
		return false
	}
	s.lastBar[symbol] = barTime
	return seen
}

// Snapshot returns a copy of every symbol's gate state for the status
// surface.
func (s *Store) Snapshot() map[string]gate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]gate.State, len(s.gates))
	for symbol, st := range s.gates {
		out[symbol] = *st
	}
	return out
}
