package portfolio

import "errors"

// ErrInsufficientCash is returned when a BUY signal's computed spend
// exceeds (or rounds to more than) the available cash.
var ErrInsufficientCash = errors.New("insufficient cash")

// ErrInsufficientHoldings is returned when a SELL signal arrives while
// the position is flat.
var ErrInsufficientHoldings = errors.New("insufficient holdings")
