package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJupiter(t *testing.T, handler http.HandlerFunc) *JupiterSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewJupiterSource(time.Second, 0, WithBaseURL(server.URL))
}

func TestJupiterFetchPrice(t *testing.T) {
	source := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, solMint, q.Get("inputMint"))
		assert.Equal(t, usdcMint, q.Get("outputMint"))
		assert.Equal(t, "1000000000", q.Get("amount"))

		// 1 SOL quoted at 142.53 USDC, in micro-USDC.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outAmount":"142530000"}`))
	})

	sample, err := source.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDC", sample.Pair)
	assert.InDelta(t, 142.53, sample.Price, 1e-9)
	assert.WithinDuration(t, time.Now().UTC(), sample.Timestamp, time.Minute)
}

func TestJupiterErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", ErrRateLimited, true},
		{"server error", http.StatusInternalServerError, "boom", ErrSourceUnavailable, true},
		{"bad gateway", http.StatusBadGateway, "boom", ErrSourceUnavailable, true},
		{"client error is permanent", http.StatusBadRequest, "bad mint", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newTestJupiter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := source.FetchPrice(context.Background())
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			} else {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.Status)
			}
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestJupiterMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>cdn error</html>"},
		{"missing outAmount", `{"inAmount":"1000000000"}`},
		{"non-numeric outAmount", `{"outAmount":"abc"}`},
		{"zero outAmount", `{"outAmount":"0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newTestJupiter(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := source.FetchPrice(context.Background())
			assert.ErrorIs(t, err, ErrSourceUnavailable)
		})
	}
}

func TestJupiterTransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	source := NewJupiterSource(time.Second, 0, WithBaseURL(server.URL))
	_, err := source.FetchPrice(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestJupiterContextCancellation(t *testing.T) {
	source := newTestJupiter(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := source.FetchPrice(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTransient(err))
}

func TestJupiterThrottleSpacesRequests(t *testing.T) {
	source := newTestJupiter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"outAmount":"100000000"}`))
	})
	source.minInterval = 50 * time.Millisecond

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := source.FetchPrice(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestJupiterThrottleRespectsContext(t *testing.T) {
	source := newTestJupiter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"outAmount":"100000000"}`))
	})
	source.minInterval = time.Minute

	_, err := source.FetchPrice(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = source.FetchPrice(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
