package pricefeed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/solsim/solsim/internal/models"
	"github.com/solsim/solsim/internal/util"
)

// MockSource replays a scripted price sequence, optionally interleaved
// with injected errors. Once the script is exhausted it generates a slow
// random walk around the last scripted price, which makes it usable both
// for deterministic tests and for offline simulator runs.
type MockSource struct {
	mu     sync.Mutex
	pair   string
	prices []float64
	errs   map[int]error
	calls  int
	last   float64
	rng    *rand.Rand
}

// NewMockSource creates a scripted source for the given pair. The prices
// are returned in order, one per FetchPrice call.
func NewMockSource(pair string, prices ...float64) *MockSource {
	last := 100.0
	if len(prices) > 0 {
		last = prices[len(prices)-1]
	}
	return &MockSource{
		pair:   pair,
		prices: prices,
		errs:   make(map[int]error),
		last:   last,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FailAt makes the n-th FetchPrice call (0-based) return err instead of a
// price. The call still consumes a slot in the sequence.
func (m *MockSource) FailAt(n int, err error) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[n] = err
	return m
}

// Calls returns how many times FetchPrice has been invoked.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Pair implements Source.
func (m *MockSource) Pair() string {
	return m.pair
}

// FetchPrice implements Source.
func (m *MockSource) FetchPrice(ctx context.Context) (*models.PriceSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.calls
	m.calls++

	if err, ok := m.errs[n]; ok {
		return nil, err
	}

	var price float64
	if n < len(m.prices) {
		price = m.prices[n]
	} else {
		// Random walk: +/- 0.5% per step, quantized to a 0.0001 tick and
		// floored away from zero.
		step := 1 + (m.rng.Float64()-0.5)*0.01
		price = math.Max(util.RoundToTick(m.last*step, 0.0001), 0.0001)
	}
	m.last = price

	return &models.PriceSample{
		Timestamp: time.Now().UTC(),
		Pair:      m.pair,
		Price:     price,
	}, nil
}
