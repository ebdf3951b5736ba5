package marketplace

import (
	"fmt"

	"github.com/holiman/uint256"
)

// OversupplyPolicy decides what happens to funds supplied beyond a buy order's cost.
type OversupplyPolicy int8

const (
	OversupplyRefund OversupplyPolicy = iota // accept and hand the excess back
	OversupplyReject                         // require an exact match
)

func (p OversupplyPolicy) String() string {
	switch p {
	case OversupplyRefund:
		return "refund"
	case OversupplyReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Unit returns 10^decimals, the number of smallest units in one whole token.
func Unit(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}

func validateOrder(quantity, price *uint256.Int) error {
	if quantity == nil || quantity.IsZero() {
		return ErrInvalidQuantity
	}
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	return nil
}

// RequiredCost returns ceil(quantity × price / unit), the wei a buy order must
// escrow. The product is overflow-checked before any division. A nil or zero
// unit means no scaling.
func RequiredCost(quantity, price, unit *uint256.Int) (*uint256.Int, error) {
	if err := validateOrder(quantity, price); err != nil {
		return nil, err
	}

	product, overflow := new(uint256.Int).MulOverflow(quantity, price)
	if overflow {
		return nil, fmt.Errorf("%w: %s × %s", ErrCostOverflow, quantity.Dec(), price.Dec())
	}
	if unit == nil || unit.IsZero() || unit.IsUint64() && unit.Uint64() == 1 {
		return product, nil
	}

	cost, rem := new(uint256.Int).DivMod(product, unit, new(uint256.Int))
	if !rem.IsZero() {
		cost.AddUint64(cost, 1)
	}
	return cost, nil
}

// CheckBuy validates a buy order against the funds attached to it and returns
// the cost to escrow and the excess to hand back.
func CheckBuy(quantity, price, fundsSupplied, unit *uint256.Int, policy OversupplyPolicy) (cost, refund *uint256.Int, err error) {
	cost, err = RequiredCost(quantity, price, unit)
	if err != nil {
		return nil, nil, err
	}

	funds := fundsSupplied
	if funds == nil {
		funds = new(uint256.Int)
	}
	if funds.Lt(cost) {
		return nil, nil, fmt.Errorf("%w: supplied %s, need %s", ErrInsufficientCost, funds.Dec(), cost.Dec())
	}

	refund = new(uint256.Int).Sub(funds, cost)
	if !refund.IsZero() && policy == OversupplyReject {
		return nil, nil, fmt.Errorf("%w: supplied %s, cost %s", ErrCostMismatch, funds.Dec(), cost.Dec())
	}
	return cost, refund, nil
}

// CheckSell validates a sell order against the tokens the submitter can still
// commit. Sell orders carry no native funds.
func CheckSell(quantity, price, availableTokenBalance *uint256.Int) error {
	if err := validateOrder(quantity, price); err != nil {
		return err
	}

	available := availableTokenBalance
	if available == nil {
		available = new(uint256.Int)
	}
	if available.Lt(quantity) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientToken, available.Dec(), quantity.Dec())
	}
	return nil
}
