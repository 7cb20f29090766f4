// Package retry wraps a price source with bounded, jittered retries for
// transient failures.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/solsim/solsim/internal/models"
	"github.com/solsim/solsim/internal/pricefeed"
)

// Config bounds the retry behavior for a single fetch.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig matches the simulator's per-tick retry budget.
var DefaultConfig = Config{
	MaxRetries:     2,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     15 * time.Second,
	Timeout:        45 * time.Second,
}

// Client retries transient price source failures with exponential backoff.
type Client struct {
	source  pricefeed.Source
	logger  *log.Logger
	config  Config
	onRetry func(attempt int)
}

// NewClient wraps the source. An omitted config uses DefaultConfig.
func NewClient(source pricefeed.Source, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Client{
		source: source,
		logger: logger,
		config: cfg,
	}
}

// SetOnRetry registers a callback invoked before each retry wait begins,
// with the 1-based retry number. It runs synchronously inside
// FetchPriceWithRetry, on the calling goroutine; the simulation loop uses
// it to track its retrying phase.
func (c *Client) SetOnRetry(fn func(attempt int)) {
	c.onRetry = fn
}

// FetchPriceWithRetry fetches one price, retrying transient failures up
// to MaxRetries times within the configured timeout. Non-transient errors
// and exhausted budgets are returned to the caller, which records a
// degraded tick rather than terminating the simulation.
func (c *Client) FetchPriceWithRetry(ctx context.Context) (*models.PriceSample, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := fetchCtx.Err(); err != nil {
			return nil, fmt.Errorf("fetch timed out after %v: %w", c.config.Timeout, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("operation canceled: %w", err)
		}

		sample, err := c.source.FetchPrice(fetchCtx)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("Price fetch succeeded on attempt %d/%d", attempt+1, c.config.MaxRetries+1)
			}
			return sample, nil
		}

		lastErr = err
		c.logger.Printf("Price fetch attempt %d/%d failed: %v", attempt+1, c.config.MaxRetries+1, err)

		if pricefeed.IsTransient(err) && attempt < c.config.MaxRetries {
			if c.onRetry != nil {
				c.onRetry(attempt + 1)
			}
			c.logger.Printf("Transient error detected, retrying in %v", backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-fetchCtx.Done():
				return nil, fmt.Errorf("fetch timed out during backoff: %w", fetchCtx.Err())
			case <-ctx.Done():
				return nil, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
			}
		} else {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch price after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}
