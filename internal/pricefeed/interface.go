// Package pricefeed provides price source clients for the simulator.
// It includes the Jupiter quote API implementation for SOL/USDC spot
// prices, a circuit-breaker wrapper, and a scripted source for offline
// runs and tests.
package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/solsim/solsim/internal/models"
)

// ErrSourceUnavailable is returned for transport-level failures: network
// errors, timeouts, and upstream 5xx responses. Transient; callers retry.
var ErrSourceUnavailable = errors.New("price source unavailable")

// ErrRateLimited is returned when the upstream rejects the request for
// exceeding its rate limits. Transient; callers back off and retry.
var ErrRateLimited = errors.New("price source rate limited")

// APIError represents an upstream API error with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Source defines the contract for retrieving one spot price on demand.
// Callers must not call FetchPrice more often than the source's configured
// minimum request interval; the simulation loop enforces its own spacing
// on top of this.
type Source interface {
	// FetchPrice returns the current price for the source's pair, or an
	// error wrapping ErrSourceUnavailable or ErrRateLimited on transient
	// failures.
	FetchPrice(ctx context.Context) (*models.PriceSample, error)

	// Pair names the asset pair this source quotes, e.g. "SOL/USDC".
	Pair() string
}
