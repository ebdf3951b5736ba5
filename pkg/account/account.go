package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is a native-currency balance held by the node on behalf of an EVM
// address. Buy orders draw their attached value from it.
type Account struct {
	Address common.Address
	Balance *uint256.Int // wei
	Nonce   uint64       // highest signed-transaction nonce applied
}

// NewAccount creates a new account with zero balance
func NewAccount(addr common.Address) *Account {
	return &Account{Address: addr, Balance: new(uint256.Int)}
}

func (a *Account) Clone() *Account {
	out := *a
	if a.Balance == nil {
		out.Balance = new(uint256.Int)
	} else {
		out.Balance = a.Balance.Clone()
	}
	return &out
}
