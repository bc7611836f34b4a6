package recorder

import "time"

// CycleResult is one symbol's outcome within a strategy cycle, flattened for
// storage.
type CycleResult struct {
	RunID     string
	Timestamp time.Time
	Symbol    string
	Status    string // "completed" or "error"
	Signal    string
	Price     float64
	Qty       int
	OrderID   string
	Synthetic bool
	Reason    string
}

// Recorder persists cycle outcomes for later analysis.
type Recorder interface {
	RecordResult(res *CycleResult) error
	Close() error
}
