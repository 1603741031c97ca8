package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/backtest"
	"github.com/thetalab/harvester/internal/ledger"
	"github.com/thetalab/harvester/internal/strategy"
)

func testResult(t *testing.T) *backtest.Result {
	t.Helper()
	book := ledger.New("putsell-2024-06-13")
	ts := time.Date(2024, 6, 11, 9, 15, 0, 0, time.UTC)
	_, err := book.AddTrade(ts, "22500|PE", 10, 1, ledger.SideSell, ledger.Meta{Expiry: "2024-06-13", Strike: 22500})
	require.NoError(t, err)
	_, err = book.AddTrade(ts.Add(time.Hour), "22500|PE", 4, 1, ledger.SideBuy, ledger.Meta{Expiry: "2024-06-13", Strike: 22500})
	require.NoError(t, err)

	start, _ := time.Parse("2006-01-02", "2024-06-11")
	end, _ := time.Parse("2006-01-02", "2024-06-28")
	return &backtest.Result{
		Start:    start,
		End:      end,
		Strategy: strategy.NamePutSell,
		Cycles: []*backtest.Cycle{{
			ID:         "cycle-1",
			Strategy:   strategy.NamePutSell,
			Expiry:     "2024-06-13",
			ExitReason: strategy.ExitReasonTarget,
			Ledger:     book,
		}},
		Stats: backtest.Statistics{TotalCycles: 1, WinningCycles: 1, WinRate: 100, TotalPnL: 6},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(Config{Port: 0}, testResult(t), logger)
}

func TestHandleGetStats(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats backtest.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalCycles)
	assert.InDelta(t, 6.0, stats.TotalPnL, 1e-9)
}

func TestHandleGetCycles(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cycles", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cycles []CycleView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cycles))
	require.Len(t, cycles, 1)
	assert.Equal(t, "cycle-1", cycles[0].ID)
	assert.Equal(t, "target", cycles[0].ExitReason)
	assert.Equal(t, 2, cycles[0].TradeCount)
	assert.InDelta(t, 6.0, cycles[0].RealizedPnL, 1e-9)
	assert.True(t, cycles[0].IsProfit)
}

func TestHandleGetCycle(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cycle/cycle-1", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		CycleView
		Trades []TradeView `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "cycle-1", payload.ID)
	require.Len(t, payload.Trades, 2)
	assert.Equal(t, "sell", payload.Trades[0].Side)
	assert.Equal(t, -1, payload.Trades[0].Quantity)
}

func TestHandleGetCycleNotFound(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cycle/nope", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleResultsPage(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "putsell backtest, 2024-06-11 to 2024-06-28")
	assert.Contains(t, body, "cycle-1")
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
