// Package journal persists archived backtest trades. The core never reads
// the journal back during a run; it is a write-only collaborator plus the
// query surface used by the report command.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thetalab/harvester/internal/backtest"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	symbol TEXT NOT NULL,
	expiry TEXT NOT NULL,
	strike INTEGER NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	ts DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	cycle_id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	expiry TEXT NOT NULL,
	exit_reason TEXT NOT NULL,
	realized_pnl REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades(cycle_id);
`

// SQLiteJournal stores archived cycles in a sqlite database file.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the journal at path.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: applying schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordResult writes every archived cycle of a completed run.
func (j *SQLiteJournal) RecordResult(ctx context.Context, result *backtest.Result) error {
	for _, c := range result.Cycles {
		if err := j.RecordCycle(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCycle writes one archived cycle and its trades in a transaction.
func (j *SQLiteJournal) RecordCycle(ctx context.Context, c *backtest.Cycle) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, strategy, expiry, exit_reason, realized_pnl, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Strategy, c.Expiry, string(c.ExitReason), c.RealizedPnL(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("journal: inserting cycle %s: %w", c.ID, err)
	}
	for _, t := range c.Ledger.AllTrades() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trades (trade_id, cycle_id, strategy, symbol, expiry, strike, side, quantity, price, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, c.ID, c.Strategy, t.Symbol, t.Expiry, t.Strike, string(t.Side), t.Quantity, t.Price, t.Timestamp,
		); err != nil {
			return fmt.Errorf("journal: inserting trade %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// CycleRecord is one row from the cycles table.
type CycleRecord struct {
	ID          string
	Strategy    string
	Expiry      string
	ExitReason  string
	RealizedPnL float64
	RecordedAt  time.Time
}

// TradeRecord is one row from the trades table.
type TradeRecord struct {
	ID        string
	CycleID   string
	Strategy  string
	Symbol    string
	Expiry    string
	Strike    int
	Side      string
	Quantity  int
	Price     float64
	Timestamp time.Time
}

// ListCycles returns all recorded cycles, oldest expiry first.
func (j *SQLiteJournal) ListCycles(ctx context.Context) ([]CycleRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT cycle_id, strategy, expiry, exit_reason, realized_pnl, recorded_at
		FROM cycles ORDER BY expiry, recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("journal: listing cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(&c.ID, &c.Strategy, &c.Expiry, &c.ExitReason, &c.RealizedPnL, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal: scanning cycle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListTrades returns the trades for one cycle in chronological order.
func (j *SQLiteJournal) ListTrades(ctx context.Context, cycleID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, cycle_id, strategy, symbol, expiry, strike, side, quantity, price, ts
		FROM trades WHERE cycle_id = ? ORDER BY ts, trade_id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("journal: listing trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.CycleID, &t.Strategy, &t.Symbol, &t.Expiry, &t.Strike, &t.Side, &t.Quantity, &t.Price, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("journal: scanning trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
