package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/ledger"
	"github.com/thetalab/harvester/internal/strategy"
)

// cycleWithPnL builds a closed round trip with the given realized value.
func cycleWithPnL(t *testing.T, pnl float64) *Cycle {
	t.Helper()
	book := ledger.New("test")
	buyPrice, sellPrice := 0.0, pnl
	if pnl < 0 {
		buyPrice, sellPrice = -pnl, 0
	}
	_, err := book.AddTrade(time.Now(), "22500|PE", buyPrice, 1, ledger.SideBuy, ledger.Meta{Strike: 22500})
	require.NoError(t, err)
	_, err = book.AddTrade(time.Now(), "22500|PE", sellPrice, 1, ledger.SideSell, ledger.Meta{Strike: 22500})
	require.NoError(t, err)
	return &Cycle{ID: "c", Ledger: book}
}

func TestComputeStatistics(t *testing.T) {
	cycles := []*Cycle{
		cycleWithPnL(t, -10),
		cycleWithPnL(t, -30),
		cycleWithPnL(t, 25),
		cycleWithPnL(t, 15),
	}

	stats := computeStatistics(cycles)
	assert.Equal(t, 4, stats.TotalCycles)
	assert.Equal(t, 2, stats.WinningCycles)
	assert.Equal(t, 2, stats.LosingCycles)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 0.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 20.0, stats.AverageWin, 1e-9)
	assert.InDelta(t, -20.0, stats.AverageLoss, 1e-9)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := computeStatistics(nil)
	assert.Equal(t, Statistics{}, stats)
}

func TestArchiveDropsTradelessCycles(t *testing.T) {
	s, err := strategy.New(strategy.NamePutSell, strategy.Config{}, time.Now(), "2024-06-13", nil)
	require.NoError(t, err)

	result := &Result{}
	rec := &events.Recorder{}
	result.archive(s, rec)

	assert.Empty(t, result.Cycles)
	assert.Empty(t, rec.Events)
}
