package account

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func wei(v uint64) *uint256.Int { return uint256.NewInt(v) }

func snapshot(t *testing.T, am *Manager, addr common.Address) *Account {
	t.Helper()
	acc, err := am.GetAccount(addr)
	require.NoError(t, err)
	return acc
}

func balance(t *testing.T, am *Manager, addr common.Address) *uint256.Int {
	t.Helper()
	return snapshot(t, am, addr).Balance
}

func TestDepositWithdraw(t *testing.T) {
	am := NewManager(nil)

	assert.True(t, balance(t, am, alice).IsZero())
	require.NoError(t, am.Deposit(alice, wei(100)))
	require.NoError(t, am.Withdraw(alice, wei(30)))
	assert.Equal(t, uint64(70), balance(t, am, alice).Uint64())

	err := am.Withdraw(alice, wei(71))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(70), balance(t, am, alice).Uint64())

	assert.ErrorIs(t, am.Deposit(alice, wei(0)), ErrInvalidAmount)
	assert.ErrorIs(t, am.Withdraw(alice, nil), ErrInvalidAmount)
}

func TestCreditDebitZeroIsNoop(t *testing.T) {
	am := NewManager(nil)
	require.NoError(t, am.Credit(alice, wei(0)))
	require.NoError(t, am.Debit(alice, nil))
	assert.True(t, balance(t, am, alice).IsZero())
}

func TestCreditOverflow(t *testing.T) {
	am := NewManager(nil)
	require.NoError(t, am.Credit(alice, new(uint256.Int).SetAllOne()))
	assert.ErrorIs(t, am.Credit(alice, wei(1)), ErrBalanceOverflow)
}

func TestSnapshotsAreCopies(t *testing.T) {
	am := NewManager(nil)
	require.NoError(t, am.Deposit(alice, wei(5)))

	acc, err := am.GetAccount(alice)
	require.NoError(t, err)
	acc.Balance.SetUint64(1000)
	acc.Nonce = 99

	assert.Equal(t, uint64(5), balance(t, am, alice).Uint64())
	assert.Zero(t, snapshot(t, am, alice).Nonce)
}

func TestUseNonce(t *testing.T) {
	am := NewManager(nil)

	require.NoError(t, am.UseNonce(alice, 1))
	assert.ErrorIs(t, am.UseNonce(alice, 1), ErrNonceTooLow)
	require.NoError(t, am.UseNonce(alice, 5))
	assert.ErrorIs(t, am.UseNonce(alice, 3), ErrNonceTooLow)
	assert.ErrorIs(t, am.UseNonce(bob, 0), ErrNonceTooLow)

	assert.Equal(t, uint64(5), snapshot(t, am, alice).Nonce)
}

func TestConcurrentDebits(t *testing.T) {
	am := NewManager(nil)
	require.NoError(t, am.Deposit(alice, wei(50)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if am.Debit(alice, wei(1)) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, ok)
	assert.True(t, balance(t, am, alice).IsZero())
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	am, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, am.Deposit(alice, wei(1_000)))
	require.NoError(t, am.UseNonce(alice, 7))
	require.NoError(t, am.Deposit(bob, wei(1)))
	require.NoError(t, am.Close())

	am, err = Open(dir)
	require.NoError(t, err)
	defer am.Close()

	acc := snapshot(t, am, alice)
	assert.Equal(t, uint64(1_000), acc.Balance.Uint64())
	assert.Equal(t, uint64(7), acc.Nonce)

	n, err := am.Warm()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(1), balance(t, am, bob).Uint64())
}

// flakyStore serves accounts from memory and fails loads while broken is set.
type flakyStore struct {
	mu       sync.Mutex
	accounts map[common.Address]*Account
	broken   bool
}

var errDiskRead = errors.New("disk read failed")

func (s *flakyStore) LoadAccount(addr common.Address) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return nil, errDiskRead
	}
	if acc, ok := s.accounts[addr]; ok {
		return acc.Clone(), nil
	}
	return nil, nil
}

func (s *flakyStore) SaveAccount(acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.Address] = acc.Clone()
	return nil
}

func (s *flakyStore) LoadAll() ([]*Account, error) { return nil, nil }
func (s *flakyStore) Close() error                 { return nil }

func TestLoadFailureDoesNotOverwriteStoredAccount(t *testing.T) {
	stored := &Account{Address: alice, Balance: wei(500), Nonce: 9}
	store := &flakyStore{accounts: map[common.Address]*Account{alice: stored}, broken: true}
	am := NewManager(store)

	_, err := am.GetAccount(alice)
	assert.ErrorIs(t, err, errDiskRead)
	assert.ErrorIs(t, am.Credit(alice, wei(1)), errDiskRead)
	assert.ErrorIs(t, am.Debit(alice, wei(1)), errDiskRead)
	assert.ErrorIs(t, am.UseNonce(alice, 3), errDiskRead)

	// nothing was written while the store was unreadable
	assert.Equal(t, uint64(500), store.accounts[alice].Balance.Uint64())
	assert.Equal(t, uint64(9), store.accounts[alice].Nonce)

	store.mu.Lock()
	store.broken = false
	store.mu.Unlock()

	acc := snapshot(t, am, alice)
	assert.Equal(t, uint64(500), acc.Balance.Uint64())
	assert.ErrorIs(t, am.UseNonce(alice, 9), ErrNonceTooLow, "old nonces stay spent")
}
