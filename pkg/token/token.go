// Package token is an in-process fungible token ledger with ERC-20 style
// balances and allowances. The marketplace only ever reads it.
package token

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidAmount  = errors.New("token: amount must be positive")
	ErrSupplyOverflow = errors.New("token: supply overflow")
)

type allowanceKey struct {
	owner, spender common.Address
}

type Ledger struct {
	Symbol   string
	Decimals uint8

	mu         sync.RWMutex
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		Symbol:     symbol,
		Decimals:   decimals,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

func (l *Ledger) balanceLocked(addr common.Address) *uint256.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}

// Mint creates amount new tokens owned by to.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	l.supply = supply
	l.balances[to] = new(uint256.Int).Add(l.balanceLocked(to), amount)
	return nil
}

// Approve sets (not adds to) the amount spender may draw from owner.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) {
	if amount == nil {
		amount = new(uint256.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner, spender}] = amount.Clone()
}

func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(addr).Clone()
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

// Source reports, for each owner, the tokens spender could pull:
// min(balance, allowance(owner, spender)).
type Source struct {
	ledger  *Ledger
	spender common.Address
}

func (l *Ledger) Source(spender common.Address) *Source {
	return &Source{ledger: l, spender: spender}
}

func (s *Source) AvailableTokenBalance(_ context.Context, owner common.Address) (*uint256.Int, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()

	balance := s.ledger.balanceLocked(owner)
	allowance, ok := s.ledger.allowances[allowanceKey{owner, s.spender}]
	if !ok {
		return new(uint256.Int), nil
	}
	if allowance.Lt(balance) {
		return allowance.Clone(), nil
	}
	return balance.Clone(), nil
}
