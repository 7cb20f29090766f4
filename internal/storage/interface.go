package storage

import (
	"github.com/solsim/solsim/internal/models"
)

// Interface defines the contract for simulation session persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call them from multiple
// goroutines. The provided JSONStorage implementation uses sync.RWMutex to
// serialize access.
type Interface interface {
	// Tick data recording
	RecordTrade(trade models.Trade) error
	RecordSnapshot(snap models.Snapshot) error

	// Data persistence
	Save() error
	Load() error

	// Session state and analytics
	GetPortfolio() models.PortfolioState
	GetTrades() []models.Trade
	GetLatestSnapshot() (models.Snapshot, error)
	GetStatistics() Statistics
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure the implementations satisfy Interface.
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
