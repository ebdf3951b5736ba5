// Package app composes native accounts, the token ledger and the marketplace
// engine into the operations the node exposes.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/seedmarket/pkg/account"
	"github.com/uhyunpark/seedmarket/pkg/marketplace"
	"github.com/uhyunpark/seedmarket/pkg/token"
	"github.com/uhyunpark/seedmarket/pkg/transaction"
	"github.com/uhyunpark/seedmarket/pkg/util"
)

var ErrNonceOutOfRange = errors.New("nonce exceeds uint64")

type Config struct {
	Accounts *account.Manager
	Market   *marketplace.Marketplace
	Tokens   *token.Ledger
	Verifier *transaction.Verifier
	// MarketAddress holds escrowed buy funds and is the spender sellers approve.
	MarketAddress common.Address
	Logger        *zap.SugaredLogger
}

type App struct {
	accounts      *account.Manager
	market        *marketplace.Marketplace
	tokens        *token.Ledger
	verifier      *transaction.Verifier
	marketAddress common.Address
	logger        *zap.SugaredLogger
}

func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = util.NopSugar()
	}
	return &App{
		accounts:      cfg.Accounts,
		market:        cfg.Market,
		tokens:        cfg.Tokens,
		verifier:      cfg.Verifier,
		marketAddress: cfg.MarketAddress,
		logger:        logger,
	}
}

func (a *App) MarketAddress() common.Address { return a.marketAddress }

// SubmitBuyOrder moves value from owner's balance into the marketplace, the
// way an EVM call carries msg.value. A rejected order gets all of it back; an
// accepted one gets back whatever exceeded the cost.
func (a *App) SubmitBuyOrder(ctx context.Context, owner common.Address, quantity, price *uint256.Int, reference uint64, value *uint256.Int) (marketplace.Receipt, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	if err := a.accounts.Debit(owner, value); err != nil {
		return marketplace.Receipt{}, fmt.Errorf("attach value: %w", err)
	}

	receipt, err := a.market.SubmitBuyOrder(ctx, owner, marketplace.BuyRequest{
		Quantity:      quantity,
		Price:         price,
		Reference:     reference,
		FundsSupplied: value,
	})
	if err != nil {
		if cerr := a.accounts.Credit(owner, value); cerr != nil {
			a.logger.Errorw("value_return_failed", "owner", owner.Hex(), "value", value.Dec(), "err", cerr)
		}
		return marketplace.Receipt{}, err
	}

	if err := a.accounts.Credit(a.marketAddress, receipt.Order.Cost); err != nil {
		a.logger.Errorw("escrow_credit_failed", "order_id", receipt.OrderID, "cost", receipt.Order.Cost.Dec(), "err", err)
	}
	if err := a.accounts.Credit(owner, receipt.Refund); err != nil {
		a.logger.Errorw("refund_failed", "order_id", receipt.OrderID, "refund", receipt.Refund.Dec(), "err", err)
	}
	return receipt, nil
}

func (a *App) SubmitSellOrder(ctx context.Context, owner common.Address, quantity, price *uint256.Int, reference uint64) (marketplace.Receipt, error) {
	return a.market.SubmitSellOrder(ctx, owner, marketplace.SellRequest{
		Quantity:  quantity,
		Price:     price,
		Reference: reference,
	})
}

// ApplySignedOrder verifies tx, consumes its nonce and submits the order.
// The nonce stays consumed even when the order is rejected.
func (a *App) ApplySignedOrder(ctx context.Context, tx *transaction.SignedTransaction) (marketplace.Receipt, error) {
	order, err := a.verifier.VerifyOrderTransaction(tx)
	if err != nil {
		return marketplace.Receipt{}, err
	}
	if !order.Nonce.IsUint64() {
		return marketplace.Receipt{}, fmt.Errorf("%w: %s", ErrNonceOutOfRange, order.Nonce.Dec())
	}
	if err := a.accounts.UseNonce(order.Owner, order.Nonce.Uint64()); err != nil {
		return marketplace.Receipt{}, err
	}

	side, err := marketplace.ParseOrderType(order.OrderType)
	if err != nil {
		return marketplace.Receipt{}, fmt.Errorf("%w: %v", transaction.ErrMalformed, err)
	}

	switch side {
	case marketplace.Buy:
		return a.SubmitBuyOrder(ctx, order.Owner, order.Quantity, order.Price, order.Reference, order.Value)
	default:
		return a.SubmitSellOrder(ctx, order.Owner, order.Quantity, order.Price, order.Reference)
	}
}

func (a *App) GetOrders(owner common.Address) ([]marketplace.Order, error) {
	return a.market.GetOrders(owner)
}

type AccountInfo struct {
	Address        common.Address
	Balance        *uint256.Int
	Nonce          uint64
	Escrow         marketplace.Escrow
	TokenBalance   *uint256.Int
	TokenAllowance *uint256.Int // granted to the marketplace
}

func (a *App) AccountInfo(addr common.Address) (AccountInfo, error) {
	acc, err := a.accounts.GetAccount(addr)
	if err != nil {
		return AccountInfo{}, err
	}
	escrow, err := a.market.Escrow(addr)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		Address:        addr,
		Balance:        acc.Balance,
		Nonce:          acc.Nonce,
		Escrow:         escrow,
		TokenBalance:   a.tokens.BalanceOf(addr),
		TokenAllowance: a.tokens.Allowance(addr, a.marketAddress),
	}, nil
}

// Deposit funds a native balance without a signature. Devnet only.
func (a *App) Deposit(addr common.Address, amount *uint256.Int) error {
	if err := a.accounts.Deposit(addr, amount); err != nil {
		return err
	}
	a.logger.Infow("deposit", "address", addr.Hex(), "amount", amount.Dec())
	return nil
}

// Withdraw removes funds from a native balance without a signature. Devnet only.
func (a *App) Withdraw(addr common.Address, amount *uint256.Int) error {
	if err := a.accounts.Withdraw(addr, amount); err != nil {
		return err
	}
	a.logger.Infow("withdraw", "address", addr.Hex(), "amount", amount.Dec())
	return nil
}

type TokenInfo struct {
	Symbol        string
	Decimals      uint8
	TotalSupply   *uint256.Int
	MarketAddress common.Address
}

func (a *App) TokenInfo() TokenInfo {
	return TokenInfo{
		Symbol:        a.tokens.Symbol,
		Decimals:      a.tokens.Decimals,
		TotalSupply:   a.tokens.TotalSupply(),
		MarketAddress: a.marketAddress,
	}
}

// Mint creates tokens for addr. Devnet only.
func (a *App) Mint(addr common.Address, amount *uint256.Int) error {
	if err := a.tokens.Mint(addr, amount); err != nil {
		return err
	}
	a.logger.Infow("mint", "address", addr.Hex(), "amount", amount.Dec(), "symbol", a.tokens.Symbol)
	return nil
}

// Approve sets owner's token allowance for the marketplace. Devnet only.
func (a *App) Approve(owner common.Address, amount *uint256.Int) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	a.tokens.Approve(owner, a.marketAddress, amount)
	a.logger.Infow("approve", "owner", owner.Hex(), "spender", a.marketAddress.Hex(), "amount", amount.Dec())
}
