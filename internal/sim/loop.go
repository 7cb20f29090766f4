package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/solsim/solsim/internal/indicator"
	"github.com/solsim/solsim/internal/models"
	"github.com/solsim/solsim/internal/portfolio"
	"github.com/solsim/solsim/internal/strategy"
)

// PriceFetcher is the loop's view of the price source, normally the retry
// client. An error return means the per-tick retry budget is spent.
type PriceFetcher interface {
	FetchPriceWithRetry(ctx context.Context) (*models.PriceSample, error)
}

// Config holds the loop's scheduling parameters.
type Config struct {
	// PollInterval is the minimum spacing between poll starts. The next
	// tick is scheduled relative to when the previous fetch began, not
	// when it returned, so slow responses never compress the cadence.
	PollInterval time.Duration
	// MaxTicks stops the loop after this many ticks when positive.
	// Zero runs until shutdown.
	MaxTicks int64
}

// Loop orchestrates the tick cycle: fetch price, update the moving
// average, evaluate the strategy, apply the result to the ledger, and
// publish a snapshot. All portfolio mutation happens on the goroutine
// that calls Run.
type Loop struct {
	config    Config
	fetcher   PriceFetcher
	tracker   *indicator.SMA
	engine    *strategy.MeanReversion
	ledger    *portfolio.Ledger
	machine   *StateMachine
	publisher *Publisher
	logger    *log.Logger

	stop     chan struct{}
	stopOnce sync.Once
	tick     int64
	lastPoll time.Time
}

// NewLoop wires the components into a runnable simulation loop.
func NewLoop(
	config Config,
	fetcher PriceFetcher,
	tracker *indicator.SMA,
	engine *strategy.MeanReversion,
	ledger *portfolio.Ledger,
	publisher *Publisher,
	logger *log.Logger,
) *Loop {
	return &Loop{
		config:    config,
		fetcher:   fetcher,
		tracker:   tracker,
		engine:    engine,
		ledger:    ledger,
		machine:   NewStateMachine(),
		publisher: publisher,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// State returns the loop's current phase.
func (l *Loop) State() LoopState {
	return l.machine.Current()
}

// Ticks returns how many ticks have run.
func (l *Loop) Ticks() int64 {
	return l.tick
}

// Stop requests a graceful shutdown. Safe to call more than once and
// from any goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// NotifyRetrying marks the current tick as retrying the price source.
// The retry client invokes it synchronously from inside the fetch call,
// so it runs on the loop goroutine; later retries within the same tick
// are no-ops.
func (l *Loop) NotifyRetrying() {
	if l.machine.Current() == StatePolling {
		l.transition(StateRetrying, "source_error")
	}
}

// Run executes the simulation until the context is canceled, Stop is
// called, or MaxTicks is reached. The first tick runs immediately; every
// subsequent tick is spaced PollInterval from the previous poll start.
// On return the publisher is closed and all pending snapshots delivered,
// so trades and final state stay readable after stop.
func (l *Loop) Run(ctx context.Context) error {
	defer l.publisher.Close()

	if err := l.machine.Transition(StatePolling, "components_ready"); err != nil {
		return err
	}
	l.logger.Printf("Simulation loop started: poll interval %v, MA period %d",
		l.config.PollInterval, l.tracker.Period())

	for {
		if !l.waitForNextPoll(ctx) {
			return l.shutdown("shutdown requested while polling")
		}

		l.lastPoll = time.Now()
		l.runTick(ctx)

		if ctx.Err() != nil || l.stopRequested() {
			return l.shutdown("shutdown requested after tick")
		}
		if l.config.MaxTicks > 0 && l.tick >= l.config.MaxTicks {
			return l.shutdown("tick budget reached")
		}
	}
}

// waitForNextPoll blocks until the scheduled poll time. Returns false if
// shutdown was requested while waiting.
func (l *Loop) waitForNextPoll(ctx context.Context) bool {
	wait := time.Duration(0)
	if !l.lastPoll.IsZero() {
		if elapsed := time.Since(l.lastPoll); elapsed < l.config.PollInterval {
			wait = l.config.PollInterval - elapsed
		}
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false
		case <-l.stop:
			return false
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-l.stop:
		return false
	default:
		return true
	}
}

func (l *Loop) runTick(ctx context.Context) {
	l.tick++
	now := time.Now().UTC()

	sample, err := l.fetcher.FetchPriceWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// NotifyRetrying normally entered this state during the fetch; a
		// fetcher that failed without retrying (permanent error, zero
		// budget) still passes through it so every degraded tick reads
		// the same in the transition history.
		if l.machine.Current() != StateRetrying {
			l.transition(StateRetrying, "source_error")
		}
		l.transition(StateIdle, "retries_exhausted")
		l.logger.Printf("Tick %d degraded: %v", l.tick, err)
		l.publish(models.Snapshot{
			Timestamp: now,
			Tick:      l.tick,
			Status:    models.TickDegraded,
			Portfolio: l.ledger.State(),
		})
		l.transition(StatePolling, "tick_complete")
		return
	}

	l.transition(StateEvaluating, "price_received")

	avg, full, err := l.tracker.Observe(sample.Price)
	if err != nil {
		l.transition(StateIdle, "invalid_price")
		l.logger.Printf("Tick %d skipped, rejected price %.6f: %v", l.tick, sample.Price, err)
		l.publish(models.Snapshot{
			Timestamp: sample.Timestamp,
			Tick:      l.tick,
			Status:    models.TickInvalid,
			Price:     sample.Price,
			Portfolio: l.ledger.State(),
		})
		l.transition(StatePolling, "tick_complete")
		return
	}

	prior := l.ledger.State()
	sig := l.engine.Evaluate(strategy.EvalInput{
		Timestamp:     sample.Timestamp,
		Price:         sample.Price,
		MovingAverage: avg,
		WindowFull:    full,
		Cash:          prior.Cash,
		HoldingsQty:   prior.Position.Quantity,
	})

	snap := models.Snapshot{
		Timestamp:     sample.Timestamp,
		Tick:          l.tick,
		Price:         sample.Price,
		MovingAverage: avg,
		WindowFull:    full,
		Signal:        sig,
	}

	result, applyErr := l.ledger.ApplySignal(sig)
	snap.Portfolio = result.State
	snap.Trade = result.Trade

	switch {
	case applyErr != nil && (errors.Is(applyErr, portfolio.ErrInsufficientCash) ||
		errors.Is(applyErr, portfolio.ErrInsufficientHoldings)):
		// Signal produced but not executable: downgrade to a no-op tick.
		snap.Status = models.TickSkipped
		l.transition(StateIdle, "trade_skipped")
		l.logger.Printf("Tick %d: %s signal skipped: %v", l.tick, sig.Side, applyErr)
	case applyErr != nil:
		snap.Status = models.TickIdle
		l.transition(StateIdle, "no_trade")
		l.logger.Printf("Tick %d: apply failed: %v", l.tick, applyErr)
	case result.Executed:
		snap.Status = models.TickTradeApplied
		l.transition(StateTradeApplied, "trade_executed")
		l.logger.Printf("Tick %d: %s %.6f @ %.4f (slipped %.4f), cash %.2f, realized P&L %.2f",
			l.tick, result.Trade.Side, result.Trade.Quantity, result.Trade.Price,
			result.Trade.SlippedPrice, result.Trade.CashAfter, result.Trade.RealizedPnLCum)
	case !full:
		snap.Status = models.TickWarmup
		l.transition(StateIdle, "no_trade")
		l.logger.Printf("Tick %d: price %.4f, collecting data (%d/%d for MA)",
			l.tick, sample.Price, l.tracker.Len(), l.tracker.Period())
	default:
		snap.Status = models.TickIdle
		l.transition(StateIdle, "no_trade")
	}

	l.publish(snap)
	l.transition(StatePolling, "tick_complete")
}

func (l *Loop) publish(snap models.Snapshot) {
	l.publisher.Publish(snap)
}

// transition logs rather than aborts on an invalid transition: a table
// bug must not take down a running simulation.
func (l *Loop) transition(to LoopState, condition string) {
	if err := l.machine.Transition(to, condition); err != nil {
		l.logger.Printf("Warning: %v", err)
	}
}

func (l *Loop) stopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Loop) shutdown(reason string) error {
	l.transition(StateStopped, "shutdown")
	l.logger.Printf("Simulation loop stopped after %d tick(s): %s", l.tick, reason)
	return nil
}
