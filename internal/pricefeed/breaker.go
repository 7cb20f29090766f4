package pricefeed

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/solsim/solsim/internal/models"
)

// BreakerSource wraps a Source with circuit breaker functionality so a
// flapping upstream trips fast instead of burning the retry budget on
// every tick.
type BreakerSource struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewBreakerSource creates a BreakerSource with sensible defaults.
func NewBreakerSource(source Source) *BreakerSource {
	return NewBreakerSourceWithSettings(source, BreakerSettings{
		MaxRequests:  2,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewBreakerSourceWithSettings creates a BreakerSource with custom settings.
func NewBreakerSourceWithSettings(source Source, settings BreakerSettings) *BreakerSource {
	gbSettings := gobreaker.Settings{
		Name:        "PriceFeedCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// FetchPrice wraps the underlying source call with the circuit breaker.
// An open circuit surfaces as ErrSourceUnavailable so the loop's degraded
// tick handling applies unchanged.
func (b *BreakerSource) FetchPrice(ctx context.Context) (*models.PriceSample, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.source.FetchPrice(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Join(ErrSourceUnavailable, err)
		}
		return nil, err
	}
	sample, ok := res.(*models.PriceSample)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return sample, nil
}

// Pair implements Source.
func (b *BreakerSource) Pair() string {
	return b.source.Pair()
}

// Ensure implementations satisfy Source at compile time.
var (
	_ Source = (*JupiterSource)(nil)
	_ Source = (*BreakerSource)(nil)
	_ Source = (*MockSource)(nil)
)
