// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/retry"
	"github.com/thetalab/harvester/internal/strategy"
)

// Defaults applied by normalize.
const (
	defaultEntryTime    = "09:15:00"
	defaultExpiryCutoff = "15:15:00"
	defaultHedgeStep    = 50
	defaultQuantity     = 1
	defaultJournalPath  = "harvester.db"
)

// Config represents the complete application configuration.
type Config struct {
	Backtest  BacktestConfig  `yaml:"backtest"`
	Data      DataConfig      `yaml:"data"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Journal   JournalConfig   `yaml:"journal"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BacktestConfig defines the simulated date range and cadence.
type BacktestConfig struct {
	Start          string `yaml:"start"` // YYYY-MM-DD
	End            string `yaml:"end"`   // YYYY-MM-DD
	SameDayReentry *bool  `yaml:"same_day_reentry"`
}

// DataConfig defines where option-chain day files live.
type DataConfig struct {
	Dir     string      `yaml:"dir"`
	Monthly bool        `yaml:"monthly"` // trade the monthly series instead of weeklies
	Retry   RetryConfig `yaml:"retry"`
}

// RetryConfig tunes the store retry/breaker wrapper. Zero values fall back
// to the retry package defaults.
type RetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// StrategyConfig defines the variant and its thresholds. Stop-loss and
// target are absolute currency amounts per cycle.
type StrategyConfig struct {
	Name         string  `yaml:"name"` // putsell | straddle
	EntryTime    string  `yaml:"entry_time"`
	EntryRank    int     `yaml:"entry_rank"`
	StopLoss     float64 `yaml:"stop_loss"`
	Target       float64 `yaml:"target"`
	ExpiryCutoff string  `yaml:"expiry_cutoff"`
	HedgeStep    int     `yaml:"hedge_step"`
	Quantity     int     `yaml:"quantity"`
}

// JournalConfig defines the sqlite archive and optional CSV export.
type JournalConfig struct {
	Path    string `yaml:"path"`
	CSVPath string `yaml:"csv_path"`
}

// DashboardConfig defines the results viewer.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	start, err := time.Parse(chain.DateFormat, c.Backtest.Start)
	if err != nil {
		return fmt.Errorf("backtest.start must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse(chain.DateFormat, c.Backtest.End)
	if err != nil {
		return fmt.Errorf("backtest.end must be YYYY-MM-DD: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("backtest.end (%s) must not precede backtest.start (%s)", c.Backtest.End, c.Backtest.Start)
	}

	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.Retry.InitialBackoff != "" {
		if _, err := time.ParseDuration(c.Data.Retry.InitialBackoff); err != nil {
			return fmt.Errorf("data.retry.initial_backoff invalid: %w", err)
		}
	}
	if c.Data.Retry.MaxBackoff != "" {
		if _, err := time.ParseDuration(c.Data.Retry.MaxBackoff); err != nil {
			return fmt.Errorf("data.retry.max_backoff invalid: %w", err)
		}
	}

	switch c.Strategy.Name {
	case strategy.NamePutSell, strategy.NameStraddle:
	default:
		return fmt.Errorf("strategy.name must be %q or %q", strategy.NamePutSell, strategy.NameStraddle)
	}
	for _, m := range []struct{ name, value string }{
		{"strategy.entry_time", c.Strategy.EntryTime},
		{"strategy.expiry_cutoff", c.Strategy.ExpiryCutoff},
	} {
		if m.value == "" {
			continue
		}
		if _, err := time.Parse(chain.MinuteFormat, m.value); err != nil {
			return fmt.Errorf("%s must be HH:MM:SS: %w", m.name, err)
		}
	}
	if c.Strategy.EntryRank < 0 {
		return fmt.Errorf("strategy.entry_rank must be >= 0")
	}
	if c.Strategy.StopLoss < 0 {
		return fmt.Errorf("strategy.stop_loss must be >= 0")
	}
	if c.Strategy.Target < 0 {
		return fmt.Errorf("strategy.target must be >= 0")
	}
	if c.Strategy.HedgeStep <= 0 {
		return fmt.Errorf("strategy.hedge_step must be > 0")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0,65535]")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

// normalize fills defaults for optional values.
func (c *Config) normalize() {
	if c.Strategy.Name == strategy.NamePutSell && c.Strategy.EntryTime == "" {
		c.Strategy.EntryTime = defaultEntryTime
	}
	if c.Strategy.ExpiryCutoff == "" {
		c.Strategy.ExpiryCutoff = defaultExpiryCutoff
	}
	if c.Strategy.HedgeStep == 0 {
		c.Strategy.HedgeStep = defaultHedgeStep
	}
	if c.Strategy.Quantity == 0 {
		c.Strategy.Quantity = defaultQuantity
	}
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// StartDate returns the parsed range start. Validate must have passed.
func (c *Config) StartDate() time.Time {
	t, _ := time.Parse(chain.DateFormat, c.Backtest.Start)
	return t
}

// EndDate returns the parsed range end. Validate must have passed.
func (c *Config) EndDate() time.Time {
	t, _ := time.Parse(chain.DateFormat, c.Backtest.End)
	return t
}

// ReentrySameDay reports whether an exited cycle may re-enter later the
// same day (the default).
func (c *Config) ReentrySameDay() bool {
	if c.Backtest.SameDayReentry == nil {
		return true
	}
	return *c.Backtest.SameDayReentry
}

// RetryParams maps the YAML retry section onto the store wrapper config.
// Unset fields keep the package defaults. Validate must have passed.
func (c *Config) RetryParams() retry.Config {
	cfg := retry.DefaultConfig
	if c.Data.Retry.MaxRetries > 0 {
		cfg.MaxRetries = c.Data.Retry.MaxRetries
	}
	if c.Data.Retry.InitialBackoff != "" {
		cfg.InitialBackoff, _ = time.ParseDuration(c.Data.Retry.InitialBackoff)
	}
	if c.Data.Retry.MaxBackoff != "" {
		cfg.MaxBackoff, _ = time.ParseDuration(c.Data.Retry.MaxBackoff)
	}
	return cfg
}

// StrategyParams maps the YAML strategy section onto the strategy config.
func (c *Config) StrategyParams() strategy.Config {
	return strategy.Config{
		EntryTime:    c.Strategy.EntryTime,
		EntryRank:    c.Strategy.EntryRank,
		StopLoss:     c.Strategy.StopLoss,
		Target:       c.Strategy.Target,
		ExpiryCutoff: c.Strategy.ExpiryCutoff,
		HedgeStep:    c.Strategy.HedgeStep,
		Quantity:     c.Strategy.Quantity,
	}
}
