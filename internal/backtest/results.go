package backtest

import (
	"time"

	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/ledger"
	"github.com/thetalab/harvester/internal/strategy"
	"github.com/thetalab/harvester/internal/util"
)

// Cycle is one archived entry-through-exit round trip: the ledger ownership
// transfers here once the strategy instance returns to flat.
type Cycle struct {
	ID         string
	Strategy   string
	Expiry     string
	ExitReason strategy.ExitReason
	Ledger     *ledger.Ledger
}

// RealizedPnL is the cycle's total realized cash flow.
func (c *Cycle) RealizedPnL() float64 {
	return c.Ledger.RealizedTotal()
}

// Statistics summarizes a run's archived cycles.
type Statistics struct {
	TotalCycles   int     `json:"total_cycles"`
	WinningCycles int     `json:"winning_cycles"`
	LosingCycles  int     `json:"losing_cycles"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
}

// Result is the outcome of one completed run. It never carries open
// positions: force-unwound cycles are discarded, not archived.
type Result struct {
	Start    time.Time
	End      time.Time
	Strategy string
	Cycles   []*Cycle
	Stats    Statistics
}

// archive moves a finished strategy's ledger into the result. Cycles that
// never traded are dropped.
func (r *Result) archive(s strategy.Strategy, obs events.Observer) {
	book := s.Ledger()
	if len(book.AllTrades()) == 0 {
		return
	}
	r.Cycles = append(r.Cycles, &Cycle{
		ID:         s.CycleID(),
		Strategy:   s.Name(),
		Expiry:     s.BoundExpiry(),
		ExitReason: s.ExitReason(),
		Ledger:     book,
	})
	obs.Publish(events.Event{
		Type:   events.TypeArchive,
		Cycle:  s.CycleID(),
		Expiry: s.BoundExpiry(),
		Reason: string(s.ExitReason()),
		Fields: map[string]any{"pnl": book.RealizedTotal()},
	})
}

func computeStatistics(cycles []*Cycle) Statistics {
	stats := Statistics{TotalCycles: len(cycles)}
	winTotal, lossTotal := 0.0, 0.0
	for _, c := range cycles {
		pnl := c.RealizedPnL()
		stats.TotalPnL += pnl
		if pnl >= 0 {
			stats.WinningCycles++
			winTotal += pnl
		} else {
			stats.LosingCycles++
			lossTotal += pnl
		}
	}
	if stats.TotalCycles > 0 {
		stats.WinRate = float64(stats.WinningCycles) / float64(stats.TotalCycles) * 100
	}
	if stats.WinningCycles > 0 {
		stats.AverageWin = util.RoundToTick(winTotal/float64(stats.WinningCycles), 0.01)
	}
	if stats.LosingCycles > 0 {
		stats.AverageLoss = util.RoundToTick(lossTotal/float64(stats.LosingCycles), 0.01)
	}
	stats.TotalPnL = util.RoundToTick(stats.TotalPnL, 0.01)
	return stats
}
