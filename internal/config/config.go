// Package config provides configuration management for the simulator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultMAPeriod is used when strategy.ma_period is unset.
	defaultMAPeriod = 20
	// defaultSlippageRate is used when strategy.slippage_rate is unset (0.1%).
	defaultSlippageRate = 0.001
	// defaultInitialCash is used when portfolio.initial_cash is unset.
	defaultInitialCash = 10000.0
	// defaultPollInterval is used when schedule.poll_interval is unset.
	defaultPollInterval = "30s"
	// defaultMaxRetries is the per-tick retry budget when unset.
	defaultMaxRetries = 2
	// defaultFeedTimeout bounds one price request when feed.timeout is unset.
	defaultFeedTimeout = "10s"
	// defaultMinRequestInterval spaces outbound feed calls when unset.
	defaultMinRequestInterval = "1s"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Portfolio   PortfolioConfig   `yaml:"portfolio"`
	Feed        FeedConfig        `yaml:"feed"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// StrategyConfig defines the mean reversion parameters. SlippageRate is
// a pointer so an explicit 0 (frictionless fills) is distinguishable from
// an absent key, which gets the default.
type StrategyConfig struct {
	MAPeriod      int      `yaml:"ma_period"`
	BuyThreshold  float64  `yaml:"buy_threshold"`
	SellThreshold float64  `yaml:"sell_threshold"`
	SlippageRate  *float64 `yaml:"slippage_rate"`
}

// PortfolioConfig defines the starting portfolio and position sizing.
type PortfolioConfig struct {
	InitialCash    float64 `yaml:"initial_cash"`
	SizingPolicy   string  `yaml:"sizing_policy"` // all_cash | fixed_fraction
	CashReservePct float64 `yaml:"cash_reserve_pct"`
	CashFraction   float64 `yaml:"cash_fraction"`
	SellFraction   float64 `yaml:"sell_fraction"`
}

// FeedConfig defines price source settings.
type FeedConfig struct {
	Provider           string `yaml:"provider"` // jupiter | mock
	Endpoint           string `yaml:"endpoint"`
	Pair               string `yaml:"pair"`
	Timeout            string `yaml:"timeout"`
	MinRequestInterval string `yaml:"min_request_interval"`
}

// ScheduleConfig defines the tick cadence and retry budget.
type ScheduleConfig struct {
	PollInterval      string `yaml:"poll_interval"`
	MaxRetriesPerTick int    `yaml:"max_retries_per_tick"`
	RetryBackoff      string `yaml:"retry_backoff"`
	MaxTicks          int64  `yaml:"max_ticks"` // 0 runs until shutdown
}

// StorageConfig defines where session data and the trade log live.
type StorageConfig struct {
	Path         string `yaml:"path"`
	TradeLogPath string `yaml:"trade_log_path"`
}

// DashboardConfig defines the optional HTTP dashboard.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate normalizes defaults and checks that all values are consistent.
func (c *Config) Validate() error {
	c.normalize()

	// Strategy validation
	if c.Strategy.MAPeriod < 2 {
		return fmt.Errorf("strategy.ma_period must be >= 2")
	}
	// Zero thresholds are valid: any strict cross of the average signals.
	if c.Strategy.BuyThreshold < 0 || c.Strategy.BuyThreshold >= 1 {
		return fmt.Errorf("strategy.buy_threshold must be in [0,1)")
	}
	if c.Strategy.SellThreshold < 0 || c.Strategy.SellThreshold >= 1 {
		return fmt.Errorf("strategy.sell_threshold must be in [0,1)")
	}
	if s := c.GetSlippageRate(); s < 0 || s >= 1 {
		return fmt.Errorf("strategy.slippage_rate must be in [0,1)")
	}

	// Portfolio validation
	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be > 0")
	}
	switch c.Portfolio.SizingPolicy {
	case "all_cash":
		if c.Portfolio.CashReservePct < 0 || c.Portfolio.CashReservePct >= 1 {
			return fmt.Errorf("portfolio.cash_reserve_pct must be in [0,1)")
		}
	case "fixed_fraction":
		if c.Portfolio.CashFraction <= 0 || c.Portfolio.CashFraction > 1 {
			return fmt.Errorf("portfolio.cash_fraction must be in (0,1]")
		}
	default:
		return fmt.Errorf("portfolio.sizing_policy must be 'all_cash' or 'fixed_fraction'")
	}
	if c.Portfolio.SellFraction <= 0 || c.Portfolio.SellFraction > 1 {
		return fmt.Errorf("portfolio.sell_fraction must be in (0,1]")
	}

	// Feed validation
	if c.Feed.Provider != "jupiter" && c.Feed.Provider != "mock" {
		return fmt.Errorf("feed.provider must be 'jupiter' or 'mock'")
	}
	if _, err := time.ParseDuration(c.Feed.Timeout); err != nil {
		return fmt.Errorf("feed.timeout invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Feed.MinRequestInterval); err != nil {
		return fmt.Errorf("feed.min_request_interval invalid: %w", err)
	}

	// Schedule validation
	interval, err := time.ParseDuration(c.Schedule.PollInterval)
	if err != nil {
		return fmt.Errorf("schedule.poll_interval invalid: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be > 0")
	}
	if c.Schedule.MaxRetriesPerTick < 0 {
		return fmt.Errorf("schedule.max_retries_per_tick must be >= 0")
	}
	if c.Schedule.RetryBackoff != "" {
		if _, err := time.ParseDuration(c.Schedule.RetryBackoff); err != nil {
			return fmt.Errorf("schedule.retry_backoff invalid: %w", err)
		}
	}
	if c.Schedule.MaxTicks < 0 {
		return fmt.Errorf("schedule.max_ticks must be >= 0")
	}

	// Storage validation
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.TradeLogPath == "" {
		return fmt.Errorf("storage.trade_log_path is required")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0,65535]")
	}

	return nil
}

// normalize fills in defaults for unset optional fields.
func (c *Config) normalize() {
	if c.Strategy.MAPeriod == 0 {
		c.Strategy.MAPeriod = defaultMAPeriod
	}
	if c.Strategy.SlippageRate == nil {
		v := defaultSlippageRate
		c.Strategy.SlippageRate = &v
	}
	if c.Portfolio.InitialCash == 0 {
		c.Portfolio.InitialCash = defaultInitialCash
	}
	if c.Portfolio.SizingPolicy == "" {
		c.Portfolio.SizingPolicy = "all_cash"
	}
	if c.Portfolio.SellFraction == 0 {
		c.Portfolio.SellFraction = 1.0
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "jupiter"
	}
	if c.Feed.Pair == "" {
		c.Feed.Pair = "SOL/USDC"
	}
	if c.Feed.Timeout == "" {
		c.Feed.Timeout = defaultFeedTimeout
	}
	if c.Feed.MinRequestInterval == "" {
		c.Feed.MinRequestInterval = defaultMinRequestInterval
	}
	if c.Schedule.PollInterval == "" {
		c.Schedule.PollInterval = defaultPollInterval
	}
	if c.Schedule.MaxRetriesPerTick == 0 {
		c.Schedule.MaxRetriesPerTick = defaultMaxRetries
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
}

// GetSlippageRate returns the configured slippage rate. Only an absent
// key falls back to the default; an explicit 0 means frictionless fills.
func (c *Config) GetSlippageRate() float64 {
	if c.Strategy.SlippageRate == nil {
		return defaultSlippageRate
	}
	return *c.Strategy.SlippageRate
}

// GetPollInterval returns the configured tick cadence.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.PollInterval)
	if err != nil {
		return 30 * time.Second // default
	}
	return d
}

// GetFeedTimeout returns the per-request feed timeout.
func (c *Config) GetFeedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Feed.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetMinRequestInterval returns the minimum spacing between feed calls.
func (c *Config) GetMinRequestInterval() time.Duration {
	d, err := time.ParseDuration(c.Feed.MinRequestInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetRetryBackoff returns the initial retry backoff, or zero to use the
// retry client's default.
func (c *Config) GetRetryBackoff() time.Duration {
	if c.Schedule.RetryBackoff == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Schedule.RetryBackoff)
	if err != nil {
		return 0
	}
	return d
}
