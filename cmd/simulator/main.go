package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/solsim/solsim/internal/config"
	"github.com/solsim/solsim/internal/dashboard"
	"github.com/solsim/solsim/internal/indicator"
	"github.com/solsim/solsim/internal/portfolio"
	"github.com/solsim/solsim/internal/pricefeed"
	"github.com/solsim/solsim/internal/retry"
	"github.com/solsim/solsim/internal/sim"
	"github.com/solsim/solsim/internal/storage"
	"github.com/solsim/solsim/internal/strategy"
	"github.com/solsim/solsim/internal/tradelog"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[SIM] ", log.LstdFlags|log.Lshortfile)
	logger.Printf("Starting mean reversion simulator: pair %s, feed %s",
		cfg.Feed.Pair, cfg.Feed.Provider)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Simulator error: %v", err)
	}
	logger.Println("Simulator stopped successfully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	source, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("building price source: %w", err)
	}

	fetcher := retry.NewClient(source, logger, retryConfig(cfg))

	tracker, err := indicator.NewSMA(cfg.Strategy.MAPeriod)
	if err != nil {
		return fmt.Errorf("building moving average tracker: %w", err)
	}

	engine := strategy.New(strategy.Config{
		BuyThreshold:  cfg.Strategy.BuyThreshold,
		SellThreshold: cfg.Strategy.SellThreshold,
	})

	ledger, err := portfolio.NewLedger(portfolio.Config{
		InitialCash:    cfg.Portfolio.InitialCash,
		SlippageRate:   cfg.GetSlippageRate(),
		Policy:         portfolio.SizingPolicy(cfg.Portfolio.SizingPolicy),
		CashReservePct: cfg.Portfolio.CashReservePct,
		CashFraction:   cfg.Portfolio.CashFraction,
		SellFraction:   cfg.Portfolio.SellFraction,
	})
	if err != nil {
		return fmt.Errorf("building portfolio ledger: %w", err)
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening session storage: %w", err)
	}

	tlog, err := tradelog.NewCSVLog(cfg.Storage.TradeLogPath)
	if err != nil {
		return fmt.Errorf("opening trade log: %w", err)
	}

	consumers := []sim.Consumer{
		tlog,
		storage.NewRecorder(store, logger),
	}

	var server *dashboard.Server
	if cfg.Dashboard.Enabled {
		server = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, store, dashboardLogger(cfg))
		consumers = append(consumers, server)
	}

	publisher := sim.NewPublisher(logger, consumers...)
	loop := sim.NewLoop(sim.Config{
		PollInterval: cfg.GetPollInterval(),
		MaxTicks:     cfg.Schedule.MaxTicks,
	}, fetcher, tracker, engine, ledger, publisher, logger)
	fetcher.SetOnRetry(func(int) { loop.NotifyRetrying() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping simulator...")
		loop.Stop()
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})

	if server != nil {
		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	// Persist the final session state regardless of how the loop ended.
	if err := store.Save(); err != nil {
		logger.Printf("Warning: final session save failed: %v", err)
	}
	return runErr
}

// buildSource assembles the configured price source behind a circuit
// breaker. The mock feed is for offline runs and demos.
func buildSource(cfg *config.Config) (pricefeed.Source, error) {
	var source pricefeed.Source
	switch cfg.Feed.Provider {
	case "jupiter":
		var opts []pricefeed.JupiterOption
		if cfg.Feed.Endpoint != "" {
			opts = append(opts, pricefeed.WithBaseURL(cfg.Feed.Endpoint))
		}
		source = pricefeed.NewJupiterSource(cfg.GetFeedTimeout(), cfg.GetMinRequestInterval(), opts...)
	case "mock":
		source = pricefeed.NewMockSource(cfg.Feed.Pair)
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}

	return pricefeed.NewBreakerSource(source), nil
}

func retryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig
	rc.MaxRetries = cfg.Schedule.MaxRetriesPerTick
	if backoff := cfg.GetRetryBackoff(); backoff > 0 {
		rc.InitialBackoff = backoff
	}
	return rc
}

func dashboardLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		l.SetLevel(level)
	}
	return l
}
