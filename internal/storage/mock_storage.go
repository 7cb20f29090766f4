package storage

import (
	"sync"

	"github.com/solsim/solsim/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests. It
// mirrors JSONStorage's statistics behavior without touching disk.
type MockStorage struct {
	mu         sync.RWMutex
	portfolio  models.PortfolioState
	trades     []models.Trade
	snapshot   *models.Snapshot
	stats      Statistics
	SaveCalls  int
	LoadCalls  int
	SaveErr    error
	RecordErrs map[string]error
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

func (m *MockStorage) RecordTrade(trade models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.RecordErrs["trade"]; err != nil {
		return err
	}
	m.trades = append(m.trades, trade)
	m.stats.TotalTrades++
	if trade.Side == models.SideSell {
		if trade.RealizedPnL > 0 {
			m.stats.WinningTrades++
		} else {
			m.stats.LosingTrades++
		}
		m.stats.TotalPnL += trade.RealizedPnL
	}
	return nil
}

func (m *MockStorage) RecordSnapshot(snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.RecordErrs["snapshot"]; err != nil {
		return err
	}
	cp := snap
	m.snapshot = &cp
	m.portfolio = snap.Portfolio
	return nil
}

func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	return m.SaveErr
}

func (m *MockStorage) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls++
	return nil
}

func (m *MockStorage) GetPortfolio() models.PortfolioState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolio
}

func (m *MockStorage) GetTrades() []models.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

func (m *MockStorage) GetLatestSnapshot() (models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return models.Snapshot{}, ErrNoSnapshot
	}
	return *m.snapshot, nil
}

func (m *MockStorage) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
