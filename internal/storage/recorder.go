package storage

import (
	"log"

	"github.com/solsim/solsim/internal/models"
)

// Recorder adapts a storage backend to the loop's snapshot consumer
// contract. Every tick updates the persisted session; executed trades are
// recorded before the snapshot so the history never lags the state.
type Recorder struct {
	store  Interface
	logger *log.Logger
}

// NewRecorder wraps a storage backend as a snapshot consumer.
func NewRecorder(store Interface, logger *log.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Name implements the snapshot consumer contract.
func (r *Recorder) Name() string {
	return "storage"
}

// OnSnapshot persists the tick. Storage failures are logged and the
// simulation continues; the in-memory ledger stays authoritative.
func (r *Recorder) OnSnapshot(snap models.Snapshot) {
	if snap.Trade != nil {
		if err := r.store.RecordTrade(*snap.Trade); err != nil {
			r.logger.Printf("Warning: recording trade %s failed: %v", snap.Trade.ID, err)
		}
	}
	if err := r.store.RecordSnapshot(snap); err != nil {
		r.logger.Printf("Warning: recording snapshot for tick %d failed: %v", snap.Tick, err)
	}
}
