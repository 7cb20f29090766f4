// Package models provides the core data structures shared across the
// simulator: price samples, trading signals, executed trades, and
// portfolio state snapshots.
package models

import (
	"time"
)

// Side identifies the direction of a signal or trade.
type Side string

const (
	// SideBuy indicates a buy signal or executed buy.
	SideBuy Side = "BUY"
	// SideSell indicates a sell signal or executed sell.
	SideSell Side = "SELL"
	// SideHold indicates no action for this tick.
	SideHold Side = "HOLD"
)

// Valid returns true if the Side is one of the defined constants.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideHold:
		return true
	default:
		return false
	}
}

// PriceSample is a single timestamped price observation from the feed.
// Immutable once created.
type PriceSample struct {
	Timestamp time.Time `json:"timestamp"`
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
}

// Signal is the output of one strategy evaluation. It carries the price
// and moving average that produced it so consumers can audit the decision.
// Signals are derived values and are never persisted on their own.
type Signal struct {
	Side          Side      `json:"side"`
	Price         float64   `json:"price"`
	MovingAverage float64   `json:"moving_average"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// Position tracks the asset holdings of the portfolio. Quantity is always
// non-negative; CostBasis is the weighted-average purchase price of the
// currently held units and is zero while the position is flat.
type Position struct {
	Quantity  float64 `json:"quantity"`
	CostBasis float64 `json:"cost_basis"`
}

// Trade is the immutable record of one executed order, created by the
// ledger and appended to the audit trail. Never mutated after creation.
type Trade struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Side           Side      `json:"side"`
	Price          float64   `json:"price"`
	SlippedPrice   float64   `json:"slipped_price"`
	Quantity       float64   `json:"quantity"`
	CashAfter      float64   `json:"cash_after"`
	PositionAfter  Position  `json:"position_after"`
	RealizedPnL    float64   `json:"realized_pnl"`
	RealizedPnLCum float64   `json:"realized_pnl_cum"`
	MovingAverage  float64   `json:"moving_average"`
}

// PortfolioState is a point-in-time copy of the ledger's books. It is a
// value type: mutating a state never affects the ledger that produced it.
type PortfolioState struct {
	Cash        float64  `json:"cash"`
	Position    Position `json:"position"`
	InitialCash float64  `json:"initial_cash"`
	RealizedPnL float64  `json:"realized_pnl"`
	TradeCount  int      `json:"trade_count"`
}

// TotalValue returns cash plus holdings marked at the given price.
func (s PortfolioState) TotalValue(price float64) float64 {
	return s.Cash + s.Position.Quantity*price
}

// UnrealizedPnL returns the paper gain on current holdings at the given
// price. Zero while the position is flat.
func (s PortfolioState) UnrealizedPnL(price float64) float64 {
	if s.Position.Quantity == 0 {
		return 0
	}
	return (price - s.Position.CostBasis) * s.Position.Quantity
}

// TickStatus describes how a simulation tick concluded.
type TickStatus string

const (
	// TickTradeApplied means the tick's signal produced an executed trade.
	TickTradeApplied TickStatus = "trade_applied"
	// TickIdle means the tick completed with a HOLD or no executable order.
	TickIdle TickStatus = "idle"
	// TickSkipped means a signal was produced but the ledger could not
	// execute it (insufficient cash or holdings).
	TickSkipped TickStatus = "skipped"
	// TickDegraded means the price source failed past the retry budget.
	TickDegraded TickStatus = "degraded"
	// TickInvalid means the fetched price was rejected as malformed.
	TickInvalid TickStatus = "invalid_price"
	// TickWarmup means the moving-average window is not yet full.
	TickWarmup TickStatus = "warmup"
)

// Snapshot is the read-only view handed to external consumers after each
// tick. Consumers must not retain references into mutable loop state; all
// fields are copies.
type Snapshot struct {
	Timestamp     time.Time      `json:"timestamp"`
	Tick          int64          `json:"tick"`
	Status        TickStatus     `json:"status"`
	Price         float64        `json:"price"`
	MovingAverage float64        `json:"moving_average"`
	WindowFull    bool           `json:"window_full"`
	Signal        Signal         `json:"signal"`
	Portfolio     PortfolioState `json:"portfolio"`
	Trade         *Trade         `json:"trade,omitempty"`
}
