// Package dashboard serves a read-only web view over a finished backtest
// result: summary statistics, per-cycle outcomes, and the trades behind
// each cycle.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/thetalab/harvester/internal/backtest"
	"github.com/thetalab/harvester/internal/chain"
)

//go:embed web/templates/*
var templateFS embed.FS

type Server struct {
	router *chi.Mux
	server *http.Server
	result *backtest.Result
	logger *logrus.Logger
	port   int
}

type Config struct {
	Port int
}

// CycleView is the JSON/template shape of one archived cycle.
type CycleView struct {
	ID          string  `json:"id"`
	Strategy    string  `json:"strategy"`
	Expiry      string  `json:"expiry"`
	ExitReason  string  `json:"exit_reason"`
	TradeCount  int     `json:"trade_count"`
	RealizedPnL float64 `json:"realized_pnl"`
	IsProfit    bool    `json:"is_profit"`
}

// TradeView is the JSON shape of one fill inside a cycle.
type TradeView struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Strike    int     `json:"strike"`
	Side      string  `json:"side"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type resultPage struct {
	Start     string
	End       string
	Strategy  string
	Stats     backtest.Statistics
	Cycles    []CycleView
	Generated time.Time
}

func NewServer(cfg Config, result *backtest.Result, logger *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		result: result,
		logger: logger,
		port:   cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/", s.handleResults)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/api/cycles", s.handleGetCycles)
	s.router.Get("/api/cycle/{id}", s.handleGetCycle)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting results server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/results.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse results template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page := resultPage{
		Start:     s.result.Start.Format(chain.DateFormat),
		End:       s.result.End.Format(chain.DateFormat),
		Strategy:  s.result.Strategy,
		Stats:     s.result.Stats,
		Cycles:    s.cycleViews(),
		Generated: time.Now(),
	}

	if err := tmpl.Execute(w, page); err != nil {
		s.logger.WithError(err).Error("Failed to execute results template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.result.Stats); err != nil {
		s.logger.WithError(err).Error("Failed to encode statistics")
	}
}

func (s *Server) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cycleViews()); err != nil {
		s.logger.WithError(err).Error("Failed to encode cycles")
	}
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, cycle := range s.result.Cycles {
		if cycle.ID != id {
			continue
		}

		payload := struct {
			CycleView
			Trades []TradeView `json:"trades"`
		}{
			CycleView: cycleView(cycle),
			Trades:    tradeViews(cycle),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.WithError(err).Error("Failed to encode cycle")
		}
		return
	}

	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.WithError(err).Error("Failed to encode health response")
	}
}

func (s *Server) cycleViews() []CycleView {
	views := make([]CycleView, 0, len(s.result.Cycles))
	for _, cycle := range s.result.Cycles {
		views = append(views, cycleView(cycle))
	}
	return views
}

func cycleView(cycle *backtest.Cycle) CycleView {
	pnl := cycle.RealizedPnL()
	return CycleView{
		ID:          cycle.ID,
		Strategy:    cycle.Strategy,
		Expiry:      cycle.Expiry,
		ExitReason:  string(cycle.ExitReason),
		TradeCount:  len(cycle.Ledger.AllTrades()),
		RealizedPnL: pnl,
		IsProfit:    pnl > 0,
	}
}

func tradeViews(cycle *backtest.Cycle) []TradeView {
	trades := cycle.Ledger.AllTrades()
	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, TradeView{
			ID:        t.ID,
			Timestamp: t.Timestamp.Format(time.RFC3339),
			Symbol:    t.Symbol,
			Strike:    t.Strike,
			Side:      string(t.Side),
			Quantity:  t.Quantity,
			Price:     t.Price,
		})
	}
	return views
}
