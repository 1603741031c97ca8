package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thetalab/harvester/internal/journal"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Query archived backtest cycles",
	Long: `Query and display archived cycles from the SQLite journal.

Subcommands:
  cycles - List all archived cycles
  trades - List the trades inside one cycle

Examples:
  harvester report cycles
  harvester report trades <cycle-id>`,
}

var reportCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List all archived cycles",
	Args:  cobra.NoArgs,
	RunE:  runReportCycles,
}

var reportTradesCmd = &cobra.Command{
	Use:   "trades <cycle-id>",
	Short: "List the trades inside one cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportTrades,
}

var reportDBPath string

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportCyclesCmd)
	reportCmd.AddCommand(reportTradesCmd)

	reportCmd.PersistentFlags().StringVarP(&reportDBPath, "db", "d", "harvester.db", "path to SQLite journal")
}

func runReportCycles(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	cycles, err := j.ListCycles(context.Background())
	if err != nil {
		return fmt.Errorf("list cycles: %w", err)
	}
	if len(cycles) == 0 {
		fmt.Println("No archived cycles.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-12s  %-14s  %12s\n", "CYCLE", "STRATEGY", "EXPIRY", "EXIT", "PNL")
	var total float64
	for _, c := range cycles {
		fmt.Printf("%-36s  %-10s  %-12s  %-14s  %12.2f\n",
			c.ID, c.Strategy, c.Expiry, c.ExitReason, c.RealizedPnL)
		total += c.RealizedPnL
	}
	fmt.Printf("%d cycles, total P&L %.2f\n", len(cycles), total)
	return nil
}

func runReportTrades(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	trades, err := j.ListTrades(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Printf("No trades for cycle %s.\n", args[0])
		return nil
	}

	fmt.Printf("%-20s  %-12s  %-5s  %8s  %10s  %s\n", "TIMESTAMP", "SYMBOL", "SIDE", "QTY", "PRICE", "TRADE")
	for _, t := range trades {
		fmt.Printf("%-20s  %-12s  %-5s  %8d  %10.2f  %s\n",
			t.Timestamp.Format("2006-01-02 15:04:05"), t.Symbol, t.Side, t.Quantity, t.Price, t.ID)
	}
	return nil
}
