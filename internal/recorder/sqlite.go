package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists cycle results to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycle_results (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			status    TEXT NOT NULL,
			signal    TEXT,
			price     REAL,
			qty       INTEGER,
			order_id  TEXT,
			synthetic INTEGER NOT NULL DEFAULT 0,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_results_ts ON cycle_results(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_results_symbol ON cycle_results(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordResult(res *CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO cycle_results
			(run_id, timestamp, symbol, status, signal, price, qty, order_id, synthetic, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Timestamp.Unix(), res.Symbol, res.Status, res.Signal,
		res.Price, res.Qty, res.OrderID, boolToInt(res.Synthetic), res.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert cycle result: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
