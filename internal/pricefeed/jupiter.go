package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/solsim/solsim/internal/models"
)

const (
	defaultJupiterBaseURL = "https://quote-api.jup.ag/v6/quote"

	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// Quote 1 SOL per request. Lamports in, micro-USDC out.
	quoteLamports   = 1_000_000_000
	lamportsPerSOL  = 1e9
	microPerUSDC    = 1e6
	quoteSlippageBP = 50
)

// JupiterSource fetches SOL/USDC spot prices from the Jupiter quote API.
// It enforces a minimum spacing between outgoing requests independent of
// what the caller does, to respect upstream rate limits.
type JupiterSource struct {
	client      *http.Client
	baseURL     string
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// JupiterOption customizes a JupiterSource.
type JupiterOption func(*JupiterSource)

// WithBaseURL overrides the quote endpoint, used by tests.
func WithBaseURL(baseURL string) JupiterOption {
	return func(j *JupiterSource) { j.baseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) JupiterOption {
	return func(j *JupiterSource) { j.client = client }
}

// NewJupiterSource creates a Jupiter client with the given request timeout
// and minimum inter-request spacing.
func NewJupiterSource(timeout, minInterval time.Duration, opts ...JupiterOption) *JupiterSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	j := &JupiterSource{
		client:      &http.Client{Timeout: timeout},
		baseURL:     defaultJupiterBaseURL,
		minInterval: minInterval,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Pair implements Source.
func (j *JupiterSource) Pair() string {
	return "SOL/USDC"
}

// quoteResponse is the subset of the Jupiter quote payload we consume.
type quoteResponse struct {
	OutAmount string `json:"outAmount"`
}

// FetchPrice implements Source. The returned price is the USDC value of
// one SOL derived from a 1-SOL quote.
func (j *JupiterSource) FetchPrice(ctx context.Context) (*models.PriceSample, error) {
	if err := j.throttle(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("inputMint", solMint)
	params.Set("outputMint", usdcMint)
	params.Set("amount", strconv.Itoa(quoteLamports))
	params.Set("slippageBps", strconv.Itoa(quoteSlippageBP))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "solsim/1.0")

	resp, err := j.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(body)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, apiErr)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, apiErr)
		default:
			return nil, apiErr
		}
	}

	var quote quoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("%w: decoding quote: %v", ErrSourceUnavailable, err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("%w: quote response missing outAmount", ErrSourceUnavailable)
	}

	outAmount, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing outAmount %q: %v", ErrSourceUnavailable, quote.OutAmount, err)
	}

	usdc := outAmount / microPerUSDC
	sol := float64(quoteLamports) / lamportsPerSOL
	price := usdc / sol
	if price <= 0 {
		return nil, fmt.Errorf("%w: non-positive quote %f", ErrSourceUnavailable, price)
	}

	return &models.PriceSample{
		Timestamp: time.Now().UTC(),
		Pair:      j.Pair(),
		Price:     price,
	}, nil
}

// throttle blocks until the minimum inter-request interval has elapsed
// since the previous call, or the context is canceled.
func (j *JupiterSource) throttle(ctx context.Context) error {
	j.mu.Lock()
	wait := time.Duration(0)
	now := time.Now()
	if !j.lastCall.IsZero() {
		if elapsed := now.Sub(j.lastCall); elapsed < j.minInterval {
			wait = j.minInterval - elapsed
		}
	}
	j.lastCall = now.Add(wait)
	j.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransient reports whether the error is a retryable source failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrRateLimited)
}
