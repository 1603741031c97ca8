package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "An options-selling backtester for intraday option-chain data",
	Long: `Harvester replays historical option-chain day files through
premium-selling strategies and archives the resulting trade cycles.

It provides tools for:
  - Backtesting put-selling and hedged-straddle strategies
  - Weekly and monthly expiry selection with same-day rollover
  - Per-cycle trade ledgers with mark-to-market exits
  - A SQLite journal of archived cycles plus CSV export
  - A web view over finished results`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
