package marketplace

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientCost  = errors.New("insufficient cost")
	ErrInsufficientToken = errors.New("insufficient token")
	ErrCostOverflow      = errors.New("cost overflow")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrSequenceGap       = errors.New("order sequence gap")

	// ErrCostMismatch rejects oversupplied buy orders under OversupplyReject.
	// It wraps ErrInsufficientCost: both mean "supplied value != cost".
	ErrCostMismatch = fmt.Errorf("%w: supplied value must equal cost", ErrInsufficientCost)
)
