package account

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/seedmarket/pkg/util"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonceTooLow         = errors.New("nonce too low")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Backend persists accounts. LoadAccount returns nil, nil for an address that
// was never saved.
type Backend interface {
	LoadAccount(addr common.Address) (*Account, error)
	SaveAccount(acc *Account) error
	LoadAll() ([]*Account, error)
	Close() error
}

var _ Backend = (*Store)(nil)

// Manager manages all native-currency accounts in a thread-safe manner.
// Uses in-memory cache + optional Pebble persistence for durability.
// A mutation reaches the cache only after it has been persisted.
type Manager struct {
	Logger *zap.SugaredLogger

	mu       sync.Mutex
	accounts map[common.Address]*Account // address -> account (in-memory cache)
	store    Backend                     // nil keeps accounts in memory only
}

// NewManager creates an account manager over store. A nil store is allowed.
func NewManager(store Backend) *Manager {
	return &Manager{
		Logger:   util.NopSugar(),
		accounts: make(map[common.Address]*Account),
		store:    store,
	}
}

// Open creates an account manager with Pebble persistence at dbPath
func Open(dbPath string) (*Manager, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return NewManager(store), nil
}

func (am *Manager) Close() error {
	if am.store == nil {
		return nil
	}
	return am.store.Close()
}

// getAccountLocked returns the cached account, loading it from the store or
// creating a zero account on miss. A failed load caches nothing, so the stored
// record is never overwritten by a zero account. Caller holds am.mu.
func (am *Manager) getAccountLocked(addr common.Address) (*Account, error) {
	if acc, ok := am.accounts[addr]; ok {
		return acc, nil
	}

	var acc *Account
	if am.store != nil {
		loaded, err := am.store.LoadAccount(addr)
		if err != nil {
			am.Logger.Warnw("account_load_failed", "address", addr.Hex(), "err", err)
			return nil, fmt.Errorf("load account %s: %w", addr.Hex(), err)
		}
		acc = loaded
	}
	if acc == nil {
		acc = NewAccount(addr)
	}

	am.accounts[addr] = acc
	return acc, nil
}

// commitLocked persists next and swaps it into the cache.
func (am *Manager) commitLocked(next *Account) error {
	if am.store != nil {
		if err := am.store.SaveAccount(next); err != nil {
			return err
		}
	}
	am.accounts[next.Address] = next
	return nil
}

// GetAccount returns a snapshot of the account, zero-valued if it has never
// been touched.
func (am *Manager) GetAccount(addr common.Address) (*Account, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	acc, err := am.getAccountLocked(addr)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// Deposit adds externally provided funds to an account
func (am *Manager) Deposit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	return am.Credit(addr, amount)
}

// Withdraw removes funds from an account.
// Returns error if insufficient balance
func (am *Manager) Withdraw(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAmount)
	}
	return am.Debit(addr, amount)
}

// Credit adds amount to the balance. Zero is a no-op.
func (am *Manager) Credit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	acc, err := am.getAccountLocked(addr)
	if err != nil {
		return err
	}
	next := acc.Clone()
	if _, overflow := next.Balance.AddOverflow(next.Balance, amount); overflow {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, addr.Hex())
	}
	return am.commitLocked(next)
}

// Debit removes amount from the balance. Zero is a no-op.
func (am *Manager) Debit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	acc, err := am.getAccountLocked(addr)
	if err != nil {
		return err
	}
	next := acc.Clone()
	if next.Balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, next.Balance.Dec(), amount.Dec())
	}
	next.Balance.Sub(next.Balance, amount)
	return am.commitLocked(next)
}

// UseNonce records nonce as the latest one applied for addr. Nonces must
// strictly increase; anything at or below the stored nonce is a replay.
func (am *Manager) UseNonce(addr common.Address, nonce uint64) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	acc, err := am.getAccountLocked(addr)
	if err != nil {
		return err
	}
	next := acc.Clone()
	if nonce <= next.Nonce {
		return fmt.Errorf("%w: nonce %d, account nonce %d", ErrNonceTooLow, nonce, next.Nonce)
	}
	next.Nonce = nonce
	return am.commitLocked(next)
}

// Warm loads every stored account into the cache.
func (am *Manager) Warm() (int, error) {
	if am.store == nil {
		return 0, nil
	}
	accounts, err := am.store.LoadAll()
	if err != nil {
		return 0, err
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	for _, acc := range accounts {
		am.accounts[acc.Address] = acc
	}
	return len(accounts), nil
}
