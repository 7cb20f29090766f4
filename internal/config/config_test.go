package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
environment:
  log_level: debug

strategy:
  ma_period: 10
  buy_threshold: 0.03
  sell_threshold: 0.02
  slippage_rate: 0.002

portfolio:
  initial_cash: 5000
  sizing_policy: fixed_fraction
  cash_fraction: 0.25
  sell_fraction: 0.5

feed:
  provider: mock
  pair: SOL/USDC
  timeout: 5s
  min_request_interval: 500ms

schedule:
  poll_interval: 10s
  max_retries_per_tick: 3
  retry_backoff: 2s

storage:
  path: data/session.json
  trade_log_path: data/trades.csv

dashboard:
  enabled: true
  port: 9847
  auth_token: secret
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.MAPeriod != 10 {
		t.Errorf("ma_period = %d, expected 10", cfg.Strategy.MAPeriod)
	}
	if cfg.Strategy.BuyThreshold != 0.03 {
		t.Errorf("buy_threshold = %v, expected 0.03", cfg.Strategy.BuyThreshold)
	}
	if cfg.Portfolio.SizingPolicy != "fixed_fraction" {
		t.Errorf("sizing_policy = %q, expected fixed_fraction", cfg.Portfolio.SizingPolicy)
	}
	if got := cfg.GetSlippageRate(); got != 0.002 {
		t.Errorf("slippage_rate = %v, expected 0.002", got)
	}
	if got := cfg.GetPollInterval(); got != 10*time.Second {
		t.Errorf("poll interval = %v, expected 10s", got)
	}
	if got := cfg.GetMinRequestInterval(); got != 500*time.Millisecond {
		t.Errorf("min request interval = %v, expected 500ms", got)
	}
	if got := cfg.GetRetryBackoff(); got != 2*time.Second {
		t.Errorf("retry backoff = %v, expected 2s", got)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 9847 {
		t.Errorf("dashboard = %+v, expected enabled on 9847", cfg.Dashboard)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `
storage:
  path: data/session.json
  trade_log_path: data/trades.csv
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.MAPeriod != 20 {
		t.Errorf("default ma_period = %d, expected 20", cfg.Strategy.MAPeriod)
	}
	// Absent thresholds default to 0: any strict cross of the average
	// signals.
	if cfg.Strategy.BuyThreshold != 0 || cfg.Strategy.SellThreshold != 0 {
		t.Errorf("default thresholds = %v/%v, expected 0/0",
			cfg.Strategy.BuyThreshold, cfg.Strategy.SellThreshold)
	}
	if got := cfg.GetSlippageRate(); got != 0.001 {
		t.Errorf("default slippage_rate = %v, expected 0.001", got)
	}
	if cfg.Portfolio.InitialCash != 10000 {
		t.Errorf("default initial_cash = %v, expected 10000", cfg.Portfolio.InitialCash)
	}
	if cfg.Portfolio.SizingPolicy != "all_cash" {
		t.Errorf("default sizing_policy = %q, expected all_cash", cfg.Portfolio.SizingPolicy)
	}
	if cfg.Portfolio.SellFraction != 1.0 {
		t.Errorf("default sell_fraction = %v, expected 1.0", cfg.Portfolio.SellFraction)
	}
	if cfg.Feed.Provider != "jupiter" {
		t.Errorf("default provider = %q, expected jupiter", cfg.Feed.Provider)
	}
	if cfg.GetPollInterval() != 30*time.Second {
		t.Errorf("default poll interval = %v, expected 30s", cfg.GetPollInterval())
	}
	if cfg.Schedule.MaxRetriesPerTick != 2 {
		t.Errorf("default max_retries_per_tick = %d, expected 2", cfg.Schedule.MaxRetriesPerTick)
	}
	if cfg.Environment.LogLevel != "info" {
		t.Errorf("default log_level = %q, expected info", cfg.Environment.LogLevel)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_DASH_TOKEN", "tok-123")
	yaml := strings.ReplaceAll(validYAML, "auth_token: secret", "auth_token: ${TEST_DASH_TOKEN}")

	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dashboard.AuthToken != "tok-123" {
		t.Errorf("auth_token = %q, expected tok-123", cfg.Dashboard.AuthToken)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := validYAML + "\nrisk:\n  max_daily_loss: 100\n"
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Error("expected error for unknown top-level field")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short ma period", func(c *Config) { c.Strategy.MAPeriod = 1 }},
		{"negative buy threshold", func(c *Config) { c.Strategy.BuyThreshold = -0.01 }},
		{"sell threshold too high", func(c *Config) { c.Strategy.SellThreshold = 1 }},
		{"negative slippage", func(c *Config) { v := -0.1; c.Strategy.SlippageRate = &v }},
		{"negative initial cash", func(c *Config) { c.Portfolio.InitialCash = -1 }},
		{"unknown sizing policy", func(c *Config) { c.Portfolio.SizingPolicy = "yolo" }},
		{"fixed fraction out of range", func(c *Config) { c.Portfolio.CashFraction = 1.5 }},
		{"unknown provider", func(c *Config) { c.Feed.Provider = "binance" }},
		{"bad feed timeout", func(c *Config) { c.Feed.Timeout = "soon" }},
		{"bad poll interval", func(c *Config) { c.Schedule.PollInterval = "whenever" }},
		{"negative retry budget", func(c *Config) { c.Schedule.MaxRetriesPerTick = -1 }},
		{"negative max ticks", func(c *Config) { c.Schedule.MaxTicks = -1 }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"missing trade log path", func(c *Config) { c.Storage.TradeLogPath = "" }},
		{"dashboard port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadAcceptsZeroThresholdsAndSlippage(t *testing.T) {
	yaml := `
strategy:
  buy_threshold: 0
  sell_threshold: 0
  slippage_rate: 0
storage:
  path: data/session.json
  trade_log_path: data/trades.csv
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.BuyThreshold != 0 || cfg.Strategy.SellThreshold != 0 {
		t.Errorf("thresholds = %v/%v, expected 0/0",
			cfg.Strategy.BuyThreshold, cfg.Strategy.SellThreshold)
	}
	// An explicit 0 means frictionless fills and must not be coerced to
	// the default.
	if got := cfg.GetSlippageRate(); got != 0 {
		t.Errorf("slippage_rate = %v, expected 0", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
