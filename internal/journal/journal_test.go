package journal

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/backtest"
	"github.com/thetalab/harvester/internal/ledger"
	"github.com/thetalab/harvester/internal/strategy"
)

func archivedCycle(t *testing.T, id, expiry string) *backtest.Cycle {
	t.Helper()
	book := ledger.New("putsell-" + expiry)
	ts := time.Date(2024, 6, 11, 9, 15, 0, 0, time.UTC)

	_, err := book.AddTrade(ts, "22500|PE", 10, 1, ledger.SideSell, ledger.Meta{Expiry: expiry, Strike: 22500})
	require.NoError(t, err)
	_, err = book.AddTrade(ts.Add(3*time.Hour), "22500|PE", 4, 1, ledger.SideBuy, ledger.Meta{Expiry: expiry, Strike: 22500})
	require.NoError(t, err)

	return &backtest.Cycle{
		ID:         id,
		Strategy:   strategy.NamePutSell,
		Expiry:     expiry,
		ExitReason: strategy.ExitReasonTarget,
		Ledger:     book,
	}
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	result := &backtest.Result{
		Strategy: strategy.NamePutSell,
		Cycles: []*backtest.Cycle{
			archivedCycle(t, "cycle-1", "2024-06-13"),
			archivedCycle(t, "cycle-2", "2024-06-20"),
		},
	}

	ctx := context.Background()
	require.NoError(t, j.RecordResult(ctx, result))

	cycles, err := j.ListCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "cycle-1", cycles[0].ID)
	assert.Equal(t, "2024-06-13", cycles[0].Expiry)
	assert.Equal(t, string(strategy.ExitReasonTarget), cycles[0].ExitReason)
	assert.InDelta(t, 6.0, cycles[0].RealizedPnL, 1e-9)

	trades, err := j.ListTrades(ctx, "cycle-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "22500|PE", trades[0].Symbol)
	assert.Equal(t, "sell", trades[0].Side)
	assert.Equal(t, -1, trades[0].Quantity)
	assert.InDelta(t, 10.0, trades[0].Price, 1e-9)
	assert.Equal(t, "buy", trades[1].Side)

	none, err := j.ListTrades(ctx, "no-such-cycle")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteJournalRejectsDuplicateCycle(t *testing.T) {
	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	c := archivedCycle(t, "cycle-1", "2024-06-13")
	require.NoError(t, j.RecordCycle(ctx, c))
	assert.Error(t, j.RecordCycle(ctx, c))

	// The failed transaction left no partial trades behind.
	trades, err := j.ListTrades(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestWriteCSV(t *testing.T) {
	result := &backtest.Result{
		Cycles: []*backtest.Cycle{archivedCycle(t, "cycle-1", "2024-06-13")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Contains(t, lines[1], "cycle-1,putsell,2024-06-13,target,")
	assert.Contains(t, lines[1], ",22500|PE,22500,sell,-1,10")
	assert.Contains(t, lines[2], ",22500|PE,22500,buy,1,4")
}

func TestWriteCSVEmptyResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &backtest.Result{}))
	assert.Equal(t, strings.Join(csvHeader, ",")+"\n", buf.String())
}
