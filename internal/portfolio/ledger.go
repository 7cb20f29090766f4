// Package portfolio owns the simulated books: cash, holdings, realized
// P&L, and the append-only trade history. All mutation happens through
// ApplySignal from the single simulation goroutine.
package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solsim/solsim/internal/models"
)

// SizingPolicy selects how BUY order quantities are computed.
type SizingPolicy string

const (
	// SizeAllCash spends the entire cash balance, minus the configured
	// reserve fraction, on every buy. This is the default policy.
	SizeAllCash SizingPolicy = "all_cash"
	// SizeFixedFraction spends CashFraction of the current cash balance
	// on every buy.
	SizeFixedFraction SizingPolicy = "fixed_fraction"
)

// Valid returns true if the SizingPolicy is one of the defined constants.
func (p SizingPolicy) Valid() bool {
	switch p {
	case SizeAllCash, SizeFixedFraction:
		return true
	default:
		return false
	}
}

// Config defines the ledger's cost model and order sizing.
type Config struct {
	// InitialCash seeds the cash balance. Must be positive.
	InitialCash float64
	// SlippageRate models execution cost: buys fill at
	// price*(1+rate), sells at price*(1-rate). Must be >= 0.
	SlippageRate float64
	// Policy selects the buy sizing rule. Defaults to SizeAllCash.
	Policy SizingPolicy
	// CashReservePct is held back from every all_cash buy. In [0,1).
	CashReservePct float64
	// CashFraction is the share of cash spent per fixed_fraction buy.
	// In (0,1]; ignored under all_cash.
	CashFraction float64
	// SellFraction is the share of holdings sold per SELL. In (0,1];
	// the default 1.0 liquidates the entire position.
	SellFraction float64
}

func (c *Config) normalize() {
	if c.Policy == "" {
		c.Policy = SizeAllCash
	}
	if c.SellFraction == 0 {
		c.SellFraction = 1.0
	}
}

func (c *Config) validate() error {
	if c.InitialCash <= 0 {
		return fmt.Errorf("initial cash must be positive, got %.2f", c.InitialCash)
	}
	if c.SlippageRate < 0 {
		return fmt.Errorf("slippage rate must be >= 0, got %f", c.SlippageRate)
	}
	if !c.Policy.Valid() {
		return fmt.Errorf("unknown sizing policy %q", c.Policy)
	}
	if c.CashReservePct < 0 || c.CashReservePct >= 1 {
		return fmt.Errorf("cash reserve must be in [0,1), got %f", c.CashReservePct)
	}
	if c.Policy == SizeFixedFraction && (c.CashFraction <= 0 || c.CashFraction > 1) {
		return fmt.Errorf("cash fraction must be in (0,1], got %f", c.CashFraction)
	}
	if c.SellFraction <= 0 || c.SellFraction > 1 {
		return fmt.Errorf("sell fraction must be in (0,1], got %f", c.SellFraction)
	}
	return nil
}

// books is the mutable state the ledger protects. It is replaced as a
// whole on every successful trade so a failed attempt can never leave a
// partial write behind.
type books struct {
	cash        float64
	position    models.Position
	realizedPnL float64
}

// Ledger applies trading signals to the portfolio with slippage modeling
// and keeps the immutable trade history in execution order.
type Ledger struct {
	config Config
	state  books
	trades []models.Trade
}

// TradeResult reports the outcome of one ApplySignal call. Trade is nil
// for HOLD and skipped signals.
type TradeResult struct {
	Executed bool
	Skipped  bool
	Trade    *models.Trade
	State    models.PortfolioState
}

// NewLedger creates a ledger seeded with the configured initial cash.
func NewLedger(config Config) (*Ledger, error) {
	config.normalize()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	return &Ledger{
		config: config,
		state:  books{cash: config.InitialCash},
	}, nil
}

// ApplySignal executes the given signal against the books at the signal's
// reference price. BUY and SELL failures return the sentinel errors from
// this package with the books untouched; the caller downgrades those to a
// skipped tick rather than terminating. HOLD is a no-op.
func (l *Ledger) ApplySignal(sig models.Signal) (TradeResult, error) {
	switch sig.Side {
	case models.SideBuy:
		return l.buy(sig)
	case models.SideSell:
		return l.sell(sig)
	case models.SideHold:
		return TradeResult{State: l.State()}, nil
	default:
		return TradeResult{State: l.State()}, fmt.Errorf("unknown signal side %q", sig.Side)
	}
}

func (l *Ledger) buy(sig models.Signal) (TradeResult, error) {
	slipped := sig.Price * (1 + l.config.SlippageRate)

	spend := 0.0
	switch l.config.Policy {
	case SizeAllCash:
		spend = l.state.cash * (1 - l.config.CashReservePct)
	case SizeFixedFraction:
		spend = l.state.cash * l.config.CashFraction
	}

	if spend <= 0 || spend > l.state.cash {
		return TradeResult{Skipped: true, State: l.State()},
			fmt.Errorf("%w: spend %.2f, cash %.2f", ErrInsufficientCash, spend, l.state.cash)
	}

	quantity := spend / slipped

	// Build the next state off to the side and install it in one step.
	next := l.state
	next.cash -= spend
	oldQty := next.position.Quantity
	oldBasis := next.position.CostBasis
	next.position.Quantity = oldQty + quantity
	next.position.CostBasis = (oldQty*oldBasis + quantity*slipped) / (oldQty + quantity)

	trade := l.record(sig, models.SideBuy, slipped, quantity, 0, next)
	l.state = next
	l.trades = append(l.trades, trade)

	return TradeResult{Executed: true, Trade: &trade, State: l.State()}, nil
}

func (l *Ledger) sell(sig models.Signal) (TradeResult, error) {
	if l.state.position.Quantity <= 0 {
		return TradeResult{Skipped: true, State: l.State()},
			fmt.Errorf("%w: position is flat", ErrInsufficientHoldings)
	}

	slipped := sig.Price * (1 - l.config.SlippageRate)
	quantity := l.state.position.Quantity * l.config.SellFraction
	pnl := (slipped - l.state.position.CostBasis) * quantity

	next := l.state
	next.cash += quantity * slipped
	next.position.Quantity -= quantity
	next.realizedPnL += pnl
	if next.position.Quantity <= 0 {
		// Guard against float residue when liquidating in full.
		next.position = models.Position{}
	}

	trade := l.record(sig, models.SideSell, slipped, quantity, pnl, next)
	l.state = next
	l.trades = append(l.trades, trade)

	return TradeResult{Executed: true, Trade: &trade, State: l.State()}, nil
}

func (l *Ledger) record(sig models.Signal, side models.Side, slipped, quantity, pnl float64, next books) models.Trade {
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return models.Trade{
		ID:             uuid.New().String(),
		Timestamp:      ts,
		Side:           side,
		Price:          sig.Price,
		SlippedPrice:   slipped,
		Quantity:       quantity,
		CashAfter:      next.cash,
		PositionAfter:  next.position,
		RealizedPnL:    pnl,
		RealizedPnLCum: next.realizedPnL,
		MovingAverage:  sig.MovingAverage,
	}
}

// State returns a copy of the current books. Safe to hand to consumers.
func (l *Ledger) State() models.PortfolioState {
	return models.PortfolioState{
		Cash:        l.state.cash,
		Position:    l.state.position,
		InitialCash: l.config.InitialCash,
		RealizedPnL: l.state.realizedPnL,
		TradeCount:  len(l.trades),
	}
}

// Trades returns a copy of the trade history in execution order.
func (l *Ledger) Trades() []models.Trade {
	out := make([]models.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// UnrealizedPnL reports the paper gain at the given price without
// mutating any state.
func (l *Ledger) UnrealizedPnL(price float64) float64 {
	return l.State().UnrealizedPnL(price)
}

// TotalValue reports cash plus holdings marked at the given price.
func (l *Ledger) TotalValue(price float64) float64 {
	return l.State().TotalValue(price)
}
