package tradelog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solsim/solsim/internal/models"
)

func tempLog(t *testing.T) *CSVLog {
	t.Helper()
	l, err := NewCSVLog(filepath.Join(t.TempDir(), "trades.csv"))
	require.NoError(t, err)
	return l
}

func sampleTrade(side models.Side, price float64) models.Trade {
	return models.Trade{
		ID:             "trade-1",
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Side:           side,
		Price:          price,
		SlippedPrice:   price * 1.001,
		Quantity:       10,
		CashAfter:      900,
		PositionAfter:  models.Position{Quantity: 10, CostBasis: price * 1.001},
		RealizedPnLCum: 12.5,
	}
}

func TestNewCSVLogWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	l, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(sampleTrade(models.SideBuy, 100)))

	// Reopening an existing log must not truncate or re-write the header.
	l2, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l2.Append(sampleTrade(models.SideSell, 110)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,side,price,slipped_price,quantity,cash_after,position_after,realized_pnl_cum", lines[0])
}

func TestAppendPreservesOrderAndFields(t *testing.T) {
	l := tempLog(t)

	require.NoError(t, l.Append(sampleTrade(models.SideBuy, 100)))
	require.NoError(t, l.Append(sampleTrade(models.SideSell, 110)))

	rows, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Len(t, first, 8)
	assert.Equal(t, "2026-03-01T12:00:00Z", first[0])
	assert.Equal(t, "BUY", first[1])

	parse := func(s string) float64 {
		f, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		return f
	}
	assert.InDelta(t, 100, parse(first[2]), 1e-9)
	assert.InDelta(t, 100.1, parse(first[3]), 1e-9)
	assert.InDelta(t, 10, parse(first[4]), 1e-9)
	assert.InDelta(t, 900, parse(first[5]), 1e-9)
	assert.InDelta(t, 10, parse(first[6]), 1e-9)
	assert.InDelta(t, 12.5, parse(first[7]), 1e-9)

	assert.Equal(t, "SELL", rows[1][1])
}

func TestReadAllEmptyLog(t *testing.T) {
	l := tempLog(t)
	rows, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOnSnapshotAppendsOnlyTrades(t *testing.T) {
	l := tempLog(t)
	assert.Equal(t, "tradelog", l.Name())

	trade := sampleTrade(models.SideBuy, 100)
	l.OnSnapshot(models.Snapshot{Tick: 1, Status: models.TickTradeApplied, Trade: &trade})
	l.OnSnapshot(models.Snapshot{Tick: 2, Status: models.TickIdle})
	l.OnSnapshot(models.Snapshot{Tick: 3, Status: models.TickDegraded})

	rows, err := l.ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewCSVLogRejectsEmptyPath(t *testing.T) {
	_, err := NewCSVLog("")
	assert.Error(t, err)
}
