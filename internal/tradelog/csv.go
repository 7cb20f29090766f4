// Package tradelog persists the executed-trade audit trail as an
// append-only CSV file, one line per trade in execution order.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/solsim/solsim/internal/models"
)

// header is the stable field order of the log. Existing lines are never
// rewritten; replaying the file reproduces the ledger's trade history.
var header = []string{
	"timestamp", "side", "price", "slipped_price", "quantity",
	"cash_after", "position_after", "realized_pnl_cum",
}

// CSVLog appends trade records to a CSV file.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

// NewCSVLog opens (or creates, with header) the trade log at path.
func NewCSVLog(path string) (*CSVLog, error) {
	if path == "" {
		return nil, fmt.Errorf("trade log path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving trade log path: %w", err)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		f, err := os.Create(abs) // #nosec G304 -- path comes from the user's config
		if err != nil {
			return nil, fmt.Errorf("creating trade log: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing trade log header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flushing trade log header: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("closing trade log: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking trade log: %w", err)
	}

	return &CSVLog{path: abs}, nil
}

// Path returns the resolved log file path.
func (l *CSVLog) Path() string {
	return l.path
}

// Append writes one trade record. Prior lines are never touched.
func (l *CSVLog) Append(trade models.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return fmt.Errorf("opening trade log: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	record := []string{
		trade.Timestamp.Format(time.RFC3339Nano),
		string(trade.Side),
		formatFloat(trade.Price),
		formatFloat(trade.SlippedPrice),
		formatFloat(trade.Quantity),
		formatFloat(trade.CashAfter),
		formatFloat(trade.PositionAfter.Quantity),
		formatFloat(trade.RealizedPnLCum),
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("writing trade record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing trade record: %w", err)
	}
	return nil
}

// ReadAll returns every logged trade record (excluding the header) as
// raw fields, oldest first. Used by tests and the dashboard.
func (l *CSVLog) ReadAll() ([][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("opening trade log: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading trade log: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

// Name implements the snapshot consumer contract.
func (l *CSVLog) Name() string {
	return "tradelog"
}

// OnSnapshot appends the tick's trade, if one executed. Write failures
// are reported on stderr but never propagate into the loop.
func (l *CSVLog) OnSnapshot(snap models.Snapshot) {
	if snap.Trade == nil {
		return
	}
	if err := l.Append(*snap.Trade); err != nil {
		fmt.Fprintf(os.Stderr, "trade log append failed: %v\n", err)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
