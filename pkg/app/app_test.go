package app

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/seedmarket/pkg/account"
	"github.com/uhyunpark/seedmarket/pkg/crypto"
	"github.com/uhyunpark/seedmarket/pkg/marketplace"
	"github.com/uhyunpark/seedmarket/pkg/token"
	"github.com/uhyunpark/seedmarket/pkg/transaction"
)

var marketAddr = common.HexToAddress("0x0000000000000000000000000000000000005EED")

// e18 returns s whole tokens (or ether) in smallest units.
func e18(s string) *uint256.Int {
	whole, frac := s, ""
	for i := range s {
		if s[i] == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}
	for len(frac) < 18 {
		frac += "0"
	}
	return uint256.MustFromDecimal(whole + frac)
}

type fixture struct {
	app      *App
	accounts *account.Manager
	tokens   *token.Ledger
	verifier *transaction.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := account.NewManager(nil)
	tokens := token.NewLedger("SEED", 18)
	market := marketplace.New(marketplace.NewMemoryLedger(), tokens.Source(marketAddr), 18)
	verifier := transaction.NewVerifier(crypto.NewDomain(1337, marketAddr))

	return &fixture{
		app: New(Config{
			Accounts:      accounts,
			Market:        market,
			Tokens:        tokens,
			Verifier:      verifier,
			MarketAddress: marketAddr,
		}),
		accounts: accounts,
		tokens:   tokens,
		verifier: verifier,
	}
}

func (f *fixture) account(t *testing.T, addr common.Address) *account.Account {
	t.Helper()
	acc, err := f.accounts.GetAccount(addr)
	require.NoError(t, err)
	return acc
}

func (f *fixture) signed(t *testing.T, signer *crypto.Signer, order *crypto.OrderEIP712) *transaction.SignedTransaction {
	t.Helper()
	order.Owner = signer.Address()
	tx := &transaction.SignedTransaction{Type: transaction.TxTypeOrder, Order: transaction.FromEIP712Order(order)}
	require.NoError(t, f.verifier.Sign(signer, tx))
	return tx
}

func TestBuyScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := common.HexToAddress("0xB0")
	require.NoError(t, f.app.Deposit(buyer, e18("100")))

	// 100 tokens at 0.4 need 40; 10 is not enough
	_, err := f.app.SubmitBuyOrder(ctx, buyer, e18("100"), e18("0.4"), 0, e18("10"))
	require.ErrorIs(t, err, marketplace.ErrInsufficientCost)
	assert.Equal(t, e18("100"), f.account(t, buyer).Balance, "value returned on rejection")

	orders, err := f.app.GetOrders(buyer)
	require.NoError(t, err)
	assert.Empty(t, orders)

	receipt, err := f.app.SubmitBuyOrder(ctx, buyer, e18("100"), e18("0.4"), 0, e18("40"))
	require.NoError(t, err)
	assert.True(t, receipt.Refund.IsZero())

	orders, err = f.app.GetOrders(buyer)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, marketplace.Buy, orders[0].Type)
	assert.Equal(t, e18("0.4"), orders[0].Price)

	assert.Equal(t, e18("60"), f.account(t, buyer).Balance)
	assert.Equal(t, e18("40"), f.account(t, marketAddr).Balance)
}

func TestBuyRefundsExcess(t *testing.T) {
	f := newFixture(t)
	buyer := common.HexToAddress("0xB1")
	require.NoError(t, f.app.Deposit(buyer, e18("50")))

	receipt, err := f.app.SubmitBuyOrder(context.Background(), buyer, e18("100"), e18("0.4"), 0, e18("50"))
	require.NoError(t, err)
	assert.Equal(t, e18("10"), receipt.Refund)
	assert.Equal(t, e18("10"), f.account(t, buyer).Balance)
	assert.Equal(t, e18("40"), f.account(t, marketAddr).Balance)
}

func TestBuyWithoutBalance(t *testing.T) {
	f := newFixture(t)
	buyer := common.HexToAddress("0xB2")

	_, err := f.app.SubmitBuyOrder(context.Background(), buyer, e18("1"), e18("1"), 0, e18("1"))
	assert.ErrorIs(t, err, account.ErrInsufficientBalance)
}

func TestSellScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := common.HexToAddress("0x5E")
	require.NoError(t, f.app.Mint(seller, e18("100")))
	f.app.Approve(seller, e18("100"))

	_, err := f.app.SubmitSellOrder(ctx, seller, e18("10000"), e18("0.1"), 0)
	require.ErrorIs(t, err, marketplace.ErrInsufficientToken)

	_, err = f.app.SubmitSellOrder(ctx, seller, e18("10"), e18("0.1"), 0)
	require.NoError(t, err)

	orders, err := f.app.GetOrders(seller)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, marketplace.Sell, orders[0].Type)
	assert.Equal(t, e18("0.1"), orders[0].Price)

	info, err := f.app.AccountInfo(seller)
	require.NoError(t, err)
	assert.Equal(t, e18("10"), info.Escrow.Tokens)
	assert.Equal(t, e18("100"), info.TokenBalance)
	assert.Equal(t, e18("100"), info.TokenAllowance)
	assert.Equal(t, uint64(1), info.Escrow.Orders)
}

func TestSellNeedsAllowance(t *testing.T) {
	f := newFixture(t)
	seller := common.HexToAddress("0x5F")
	require.NoError(t, f.app.Mint(seller, e18("100")))

	_, err := f.app.SubmitSellOrder(context.Background(), seller, e18("1"), e18("1"), 0)
	assert.ErrorIs(t, err, marketplace.ErrInsufficientToken)
}

func TestApplySignedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, f.app.Deposit(signer.Address(), e18("40")))

	tx := f.signed(t, signer, &crypto.OrderEIP712{
		OrderType: 0,
		Quantity:  e18("100"),
		Price:     e18("0.4"),
		Reference: 3,
		Value:     e18("40"),
		Nonce:     uint256.NewInt(1),
	})

	receipt, err := f.app.ApplySignedOrder(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), receipt.Order.Reference)

	// replay
	_, err = f.app.ApplySignedOrder(ctx, tx)
	assert.ErrorIs(t, err, account.ErrNonceTooLow)

	info, err := f.app.AccountInfo(signer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Nonce)
	assert.True(t, info.Balance.IsZero())
}

func TestApplySignedSellConsumesNonceOnRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signer, _ := crypto.GenerateKey()

	tx := f.signed(t, signer, &crypto.OrderEIP712{
		OrderType: 1,
		Quantity:  e18("1"),
		Price:     e18("1"),
		Nonce:     uint256.NewInt(7),
	})
	_, err := f.app.ApplySignedOrder(ctx, tx)
	require.ErrorIs(t, err, marketplace.ErrInsufficientToken)
	assert.Equal(t, uint64(7), f.account(t, signer.Address()).Nonce)
}

func TestApplySignedOrderBadSignature(t *testing.T) {
	f := newFixture(t)
	signer, _ := crypto.GenerateKey()

	tx := f.signed(t, signer, &crypto.OrderEIP712{
		Quantity: e18("1"),
		Price:    e18("1"),
		Nonce:    uint256.NewInt(1),
	})
	tx.Order.Quantity = e18("2").Dec()

	_, err := f.app.ApplySignedOrder(context.Background(), tx)
	assert.ErrorIs(t, err, transaction.ErrInvalidSignature)
	assert.Zero(t, f.account(t, signer.Address()).Nonce)
}

func TestDevWithdraw(t *testing.T) {
	f := newFixture(t)
	holder := common.HexToAddress("0xD1")
	require.NoError(t, f.app.Deposit(holder, e18("5")))

	require.NoError(t, f.app.Withdraw(holder, e18("2")))
	assert.Equal(t, e18("3"), f.account(t, holder).Balance)

	assert.ErrorIs(t, f.app.Withdraw(holder, e18("4")), account.ErrInsufficientBalance)
	assert.ErrorIs(t, f.app.Withdraw(holder, new(uint256.Int)), account.ErrInvalidAmount)
}

func TestTokenInfo(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.Mint(common.HexToAddress("0xD2"), e18("7")))
	require.NoError(t, f.app.Mint(common.HexToAddress("0xD3"), e18("3")))

	info := f.app.TokenInfo()
	assert.Equal(t, "SEED", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)
	assert.Equal(t, e18("10"), info.TotalSupply)
	assert.Equal(t, marketAddr, info.MarketAddress)
}
