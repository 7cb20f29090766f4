// Package strategy implements the mean-reversion signal engine: buy when
// price dips below the moving average, sell when it rises above it.
package strategy

import (
	"time"

	"github.com/solsim/solsim/internal/models"
)

// Config holds the strategy thresholds. Both thresholds are fractions of
// the moving average and default to zero, meaning any strict cross of the
// average produces a signal.
type Config struct {
	// BuyThreshold widens the buy band: BUY requires
	// price < avg * (1 - BuyThreshold).
	BuyThreshold float64
	// SellThreshold widens the sell band: SELL requires
	// price > avg * (1 + SellThreshold).
	SellThreshold float64
}

// EvalInput carries everything Evaluate needs. The engine never reaches
// into tracker or ledger state on its own; all inputs arrive by value.
type EvalInput struct {
	Timestamp     time.Time
	Price         float64
	MovingAverage float64
	// WindowFull gates signal generation: partial averages never trade.
	WindowFull bool
	// Cash and HoldingsQty are the prior portfolio constraints.
	Cash        float64
	HoldingsQty float64
}

// MeanReversion is a pure signal engine. The zero value uses strict
// above/below comparisons against the moving average.
type MeanReversion struct {
	config Config
}

// New creates a mean-reversion engine with the given thresholds.
func New(config Config) *MeanReversion {
	return &MeanReversion{config: config}
}

// Evaluate maps one price observation to a trading signal. It is a pure
// function: identical inputs always produce the identical signal, and no
// portfolio or tracker state is mutated.
//
// Comparison operators are strict on both sides, so a price exactly equal
// to the (threshold-adjusted) average holds. The warming-up window and a
// portfolio that cannot act both downgrade to HOLD here rather than
// producing a signal the ledger would have to reject.
func (m *MeanReversion) Evaluate(in EvalInput) models.Signal {
	sig := models.Signal{
		Side:          models.SideHold,
		Price:         in.Price,
		MovingAverage: in.MovingAverage,
		Timestamp:     in.Timestamp,
	}

	if !in.WindowFull {
		sig.Reason = "warming_up"
		return sig
	}

	buyBand := in.MovingAverage * (1 - m.config.BuyThreshold)
	sellBand := in.MovingAverage * (1 + m.config.SellThreshold)

	switch {
	case in.Price < buyBand && in.Cash > 0:
		sig.Side = models.SideBuy
		sig.Reason = "price_below_average"
	case in.Price > sellBand && in.HoldingsQty > 0:
		sig.Side = models.SideSell
		sig.Reason = "price_above_average"
	default:
		sig.Reason = "within_band"
	}
	return sig
}
