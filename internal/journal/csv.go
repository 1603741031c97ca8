package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/thetalab/harvester/internal/backtest"
)

var csvHeader = []string{
	"cycle_id", "strategy", "expiry", "exit_reason",
	"trade_id", "ts", "symbol", "strike", "side", "quantity", "price",
}

// WriteCSV dumps every archived trade of a run as one flat CSV, one row per
// fill, cycles in archive order.
func WriteCSV(w io.Writer, result *backtest.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("journal: writing csv header: %w", err)
	}
	for _, c := range result.Cycles {
		for _, t := range c.Ledger.AllTrades() {
			rec := []string{
				c.ID,
				c.Strategy,
				c.Expiry,
				string(c.ExitReason),
				t.ID,
				t.Timestamp.Format(time.DateTime),
				t.Symbol,
				strconv.Itoa(t.Strike),
				string(t.Side),
				strconv.Itoa(t.Quantity),
				strconv.FormatFloat(t.Price, 'f', -1, 64),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("journal: writing csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
