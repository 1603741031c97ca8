package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thetalab/harvester/internal/backtest"
	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/config"
	"github.com/thetalab/harvester/internal/dashboard"
	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/expiry"
	"github.com/thetalab/harvester/internal/journal"
	"github.com/thetalab/harvester/internal/retry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest from a config file",
	Long: `Run a backtest over the configured date range using settings from a
configuration file.

The config file specifies the data directory, strategy variant and
thresholds, journal paths, and the optional results dashboard.

Example:
  harvester run --config config.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "config.yaml", "path to config file (YAML)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eventLog := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	eventLog.SetLevel(level)

	logger := log.New(os.Stdout, "[HARVESTER] ", log.LstdFlags)

	var store chain.Store = chain.NewCSVStore(cfg.Data.Dir)
	if cfg.Data.Retry.Enabled {
		store = retry.NewStore(store, logger, cfg.RetryParams())
	}
	resolver := expiry.NewResolver(store, cfg.Data.Monthly)

	runner, err := backtest.New(store, resolver, backtest.Config{
		Start:          cfg.StartDate(),
		End:            cfg.EndDate(),
		Strategy:       cfg.Strategy.Name,
		Params:         cfg.StrategyParams(),
		SameDayReentry: cfg.ReentrySameDay(),
	}, events.NewLogObserver(eventLog), logger)
	if err != nil {
		return fmt.Errorf("build backtest: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	printSummary(result)

	if cfg.Journal.Path != "" {
		j, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		if err := j.RecordResult(ctx, result); err != nil {
			return fmt.Errorf("record result: %w", err)
		}
		logger.Printf("Archived %d cycles to %s", len(result.Cycles), cfg.Journal.Path)
	}

	if cfg.Journal.CSVPath != "" {
		f, err := os.Create(cfg.Journal.CSVPath)
		if err != nil {
			return fmt.Errorf("create csv export: %w", err)
		}
		if err := journal.WriteCSV(f, result); err != nil {
			f.Close()
			return fmt.Errorf("write csv export: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close csv export: %w", err)
		}
		logger.Printf("Exported trades to %s", cfg.Journal.CSVPath)
	}

	if cfg.Dashboard.Enabled {
		return serveResults(ctx, cfg, result, eventLog)
	}

	return nil
}

// serveResults blocks until the signal context is cancelled.
func serveResults(ctx context.Context, cfg *config.Config, result *backtest.Result, eventLog *logrus.Logger) error {
	srv := dashboard.NewServer(dashboard.Config{Port: cfg.Dashboard.Port}, result, eventLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

func printSummary(result *backtest.Result) {
	stats := result.Stats
	fmt.Printf("Backtest %s, %s to %s\n",
		result.Strategy,
		result.Start.Format(chain.DateFormat),
		result.End.Format(chain.DateFormat))
	fmt.Printf("  Cycles: %d (%d wins, %d losses, %.1f%% win rate)\n",
		stats.TotalCycles, stats.WinningCycles, stats.LosingCycles, stats.WinRate)
	fmt.Printf("  Total P&L: %.2f\n", stats.TotalPnL)
	fmt.Printf("  Average win: %.2f  Average loss: %.2f\n", stats.AverageWin, stats.AverageLoss)
}
