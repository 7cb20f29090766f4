// Package indicator provides the rolling simple-moving-average tracker
// that drives the mean-reversion strategy.
package indicator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPrice is returned when an observation is rejected because the
// price is non-positive or not a finite number. The tick that produced it
// should be skipped; the tracker state is unchanged.
var ErrInvalidPrice = errors.New("invalid price")

// recomputeEvery bounds accumulated floating-point drift in the running
// sum by recomputing it from the retained values periodically.
const recomputeEvery = 1024

// SMA maintains a fixed-capacity ring of the most recent prices and the
// arithmetic mean over them. The window size is fixed at construction.
// Not safe for concurrent use; the simulation loop is the only writer.
type SMA struct {
	values   []float64
	period   int
	index    int
	filled   bool
	sum      float64
	observed int64
}

// NewSMA creates a tracker over the last period observations.
// The period must be at least 2.
func NewSMA(period int) (*SMA, error) {
	if period < 2 {
		return nil, fmt.Errorf("sma period must be >= 2, got %d", period)
	}
	return &SMA{
		values: make([]float64, period),
		period: period,
	}, nil
}

// Period returns the configured window size.
func (s *SMA) Period() int {
	return s.period
}

// Observe records a new price and returns the updated average. The average
// is valid as soon as one sample exists; full reports whether the window
// holds the complete period, which is what gates signal generation.
func (s *SMA) Observe(price float64) (avg float64, full bool, err error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, s.filled, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	if s.filled {
		s.sum -= s.values[s.index]
	}
	s.values[s.index] = price
	s.sum += price
	s.index = (s.index + 1) % s.period
	if s.index == 0 {
		s.filled = true
	}

	s.observed++
	if s.observed%recomputeEvery == 0 {
		s.recompute()
	}

	avg, _ = s.Average()
	return avg, s.filled, nil
}

// Average returns the arithmetic mean of the retained values. The second
// return is false until at least one sample has been observed.
func (s *SMA) Average() (float64, bool) {
	n := s.Len()
	if n == 0 {
		return 0, false
	}
	return s.sum / float64(n), true
}

// Len returns how many samples are currently retained, at most the period.
func (s *SMA) Len() int {
	if s.filled {
		return s.period
	}
	return s.index
}

// Full reports whether the window holds a complete period of samples.
func (s *SMA) Full() bool {
	return s.filled
}

func (s *SMA) recompute() {
	sum := 0.0
	for i := 0; i < s.Len(); i++ {
		sum += s.values[i]
	}
	s.sum = sum
}
