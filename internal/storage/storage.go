// Package storage persists the simulation session to a JSON file: current
// portfolio state, the executed trade history, the latest tick snapshot,
// and derived performance statistics.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/solsim/solsim/internal/models"
)

// SessionData is the on-disk shape of one simulation session.
type SessionData struct {
	Portfolio    models.PortfolioState `json:"portfolio"`
	Trades       []models.Trade        `json:"trades"`
	LastSnapshot *models.Snapshot      `json:"last_snapshot,omitempty"`
	Statistics   *Statistics           `json:"statistics"`
	StartedAt    time.Time             `json:"started_at"`
	LastUpdated  time.Time             `json:"last_updated"`

	// peakValue is the running equity high-water mark used for the
	// drawdown calculation. Persisted so restarts keep the same baseline.
	PeakValue float64 `json:"peak_value"`
}

// Statistics aggregates session performance. Win/loss figures cover
// completed round trips, so only sells with realized P&L contribute.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	CurrentStreak int     `json:"current_streak"`
}

// JSONStorage persists SessionData to a single JSON file. Saves go through
// a temp file and rename so a crash never leaves a half-written session.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *SessionData
}

// NewJSONStorage opens the session file at filepath, loading existing data
// when present.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	if filepath == "" {
		return nil, fmt.Errorf("storage path is empty")
	}

	s := &JSONStorage{
		filepath: filepath,
		data: &SessionData{
			Statistics: &Statistics{},
			StartedAt:  time.Now().UTC(),
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
	}

	return s, nil
}

// Load replaces in-memory session data with the file contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath) // #nosec G304 -- path comes from the user's config
	if err != nil {
		return err
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing session file: %w", err)
	}
	if data.Statistics == nil {
		data.Statistics = &Statistics{}
	}
	s.data = &data
	return nil
}

// Save writes the session to disk atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the session file. Callers must hold the write lock.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return fmt.Errorf("writing session temp file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		return fmt.Errorf("renaming session file: %w", err)
	}
	return nil
}

// RecordTrade appends an executed trade, updates statistics, and saves.
func (s *JSONStorage) RecordTrade(trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Trades = append(s.data.Trades, trade)
	s.updateStatistics(trade)
	return s.saveLocked()
}

// RecordSnapshot stores the latest tick snapshot, refreshes the portfolio
// state and drawdown figures, and saves.
func (s *JSONStorage) RecordSnapshot(snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := snap
	s.data.LastSnapshot = &cp
	s.data.Portfolio = snap.Portfolio
	s.updateDrawdown(snap)
	return s.saveLocked()
}

// updateStatistics folds one trade into the aggregates. Callers must hold
// the write lock.
func (s *JSONStorage) updateStatistics(trade models.Trade) {
	stats := s.data.Statistics
	stats.TotalTrades++

	if trade.Side != models.SideSell {
		return
	}

	pnl := trade.RealizedPnL
	stats.TotalPnL += pnl

	if pnl > 0 {
		stats.WinningTrades++
		if stats.CurrentStreak >= 0 {
			stats.CurrentStreak++
		} else {
			stats.CurrentStreak = 1
		}
		totalWins := stats.AverageWin*float64(stats.WinningTrades-1) + pnl
		stats.AverageWin = totalWins / float64(stats.WinningTrades)
	} else {
		stats.LosingTrades++
		if stats.CurrentStreak <= 0 {
			stats.CurrentStreak--
		} else {
			stats.CurrentStreak = -1
		}
		totalLosses := stats.AverageLoss*float64(stats.LosingTrades-1) + pnl
		stats.AverageLoss = totalLosses / float64(stats.LosingTrades)
	}

	if closed := stats.WinningTrades + stats.LosingTrades; closed > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(closed)
	}
	if pnl > stats.BestTrade {
		stats.BestTrade = pnl
	}
	if pnl < stats.WorstTrade {
		stats.WorstTrade = pnl
	}
}

// updateDrawdown tracks peak equity and the deepest drop from it, marked
// at the snapshot's price. Callers must hold the write lock.
func (s *JSONStorage) updateDrawdown(snap models.Snapshot) {
	if snap.Price <= 0 {
		return
	}
	value := snap.Portfolio.TotalValue(snap.Price)
	if value > s.data.PeakValue {
		s.data.PeakValue = value
	}
	if s.data.PeakValue > 0 {
		if dd := (s.data.PeakValue - value) / s.data.PeakValue; dd > s.data.Statistics.MaxDrawdown {
			s.data.Statistics.MaxDrawdown = dd
		}
	}
}

// GetPortfolio returns the last recorded portfolio state.
func (s *JSONStorage) GetPortfolio() models.PortfolioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Portfolio
}

// GetTrades returns a copy of the recorded trade history, oldest first.
func (s *JSONStorage) GetTrades() []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trade, len(s.data.Trades))
	copy(out, s.data.Trades)
	return out
}

// GetLatestSnapshot returns the most recent tick snapshot, or
// ErrNoSnapshot before the first tick completes.
func (s *JSONStorage) GetLatestSnapshot() (models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.LastSnapshot == nil {
		return models.Snapshot{}, ErrNoSnapshot
	}
	return *s.data.LastSnapshot, nil
}

// GetStatistics returns a copy of the session statistics.
func (s *JSONStorage) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.data.Statistics
}
