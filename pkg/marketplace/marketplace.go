package marketplace

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/seedmarket/pkg/events"
	"github.com/uhyunpark/seedmarket/pkg/util"
)

// TokenSource reports how many token units an address can commit to sell orders
// before anything this marketplace has already escrowed.
type TokenSource interface {
	AvailableTokenBalance(ctx context.Context, addr common.Address) (*uint256.Int, error)
}

// book is the escrow state of one submitter. mu serializes every submission
// from that submitter across check, append and escrow update.
type book struct {
	mu     sync.Mutex
	loaded bool
	escrow Escrow
}

// Marketplace validates orders against the collateral attached to them and
// records accepted orders in a Ledger.
type Marketplace struct {
	Policy    OversupplyPolicy
	Clock     util.Clock
	Publisher events.Publisher
	Logger    *zap.SugaredLogger

	ledger Ledger
	tokens TokenSource
	unit   *uint256.Int

	mu    sync.Mutex
	books map[common.Address]*book
}

// New creates a marketplace over ledger. decimals is the token's decimal count;
// buy costs are scaled back by 10^decimals.
func New(ledger Ledger, tokens TokenSource, decimals uint8) *Marketplace {
	return &Marketplace{
		Policy:    OversupplyRefund,
		Clock:     util.RealClock{},
		Publisher: events.Nop{},
		Logger:    util.NopSugar(),
		ledger:    ledger,
		tokens:    tokens,
		unit:      Unit(decimals),
		books:     make(map[common.Address]*book),
	}
}

// Unit is the number of smallest token units in one whole token.
func (m *Marketplace) Unit() *uint256.Int {
	return m.unit.Clone()
}

func (m *Marketplace) bookFor(addr common.Address) *book {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[addr]
	if !ok {
		b = &book{}
		m.books[addr] = b
	}
	return b
}

// loadLocked rebuilds the escrow totals from the ledger on first touch.
// Caller holds b.mu.
func (m *Marketplace) loadLocked(addr common.Address, b *book) error {
	if b.loaded {
		return nil
	}

	orders, err := m.ledger.Orders(addr)
	if err != nil {
		return fmt.Errorf("load orders for %s: %w", addr.Hex(), err)
	}

	escrow := Escrow{Funds: new(uint256.Int), Tokens: new(uint256.Int)}
	for _, o := range orders {
		var overflow bool
		switch o.Type {
		case Buy:
			_, overflow = escrow.Funds.AddOverflow(escrow.Funds, o.Cost)
		case Sell:
			_, overflow = escrow.Tokens.AddOverflow(escrow.Tokens, o.Quantity)
		}
		if overflow {
			return fmt.Errorf("%w: escrow total of %s at order %s", ErrCostOverflow, addr.Hex(), o.ID)
		}
	}
	escrow.Orders = uint64(len(orders))

	b.escrow = escrow
	b.loaded = true
	return nil
}

// SubmitBuyOrder records a buy order if req.FundsSupplied covers its cost.
func (m *Marketplace) SubmitBuyOrder(ctx context.Context, submitter common.Address, req BuyRequest) (Receipt, error) {
	b := m.bookFor(submitter)
	b.mu.Lock()

	receipt, err := m.submitBuyLocked(submitter, b, req)
	b.mu.Unlock()

	if err != nil {
		m.Logger.Infow("order_rejected",
			"side", Buy.String(),
			"submitter", submitter.Hex(),
			"quantity", decimal(req.Quantity),
			"price", decimal(req.Price),
			"err", err,
		)
		return Receipt{}, err
	}

	m.accepted(ctx, receipt)
	return receipt, nil
}

func (m *Marketplace) submitBuyLocked(submitter common.Address, b *book, req BuyRequest) (Receipt, error) {
	cost, refund, err := CheckBuy(req.Quantity, req.Price, req.FundsSupplied, m.unit, m.Policy)
	if err != nil {
		return Receipt{}, err
	}
	if err := m.loadLocked(submitter, b); err != nil {
		return Receipt{}, err
	}

	funds, overflow := new(uint256.Int).AddOverflow(b.escrow.Funds, cost)
	if overflow {
		return Receipt{}, fmt.Errorf("%w: escrowed funds %s + cost %s", ErrCostOverflow, b.escrow.Funds.Dec(), cost.Dec())
	}

	order := m.newOrder(submitter, b.escrow.Orders, Buy, req.Quantity, req.Price, cost, req.Reference)
	if err := m.ledger.Append(order); err != nil {
		return Receipt{}, fmt.Errorf("append buy order: %w", err)
	}

	b.escrow.Funds = funds
	b.escrow.Orders++
	return Receipt{OrderID: order.ID, Order: order, Refund: refund}, nil
}

// SubmitSellOrder records a sell order if the submitter's uncommitted token
// balance covers its quantity.
func (m *Marketplace) SubmitSellOrder(ctx context.Context, submitter common.Address, req SellRequest) (Receipt, error) {
	b := m.bookFor(submitter)
	b.mu.Lock()

	receipt, err := m.submitSellLocked(ctx, submitter, b, req)
	b.mu.Unlock()

	if err != nil {
		m.Logger.Infow("order_rejected",
			"side", Sell.String(),
			"submitter", submitter.Hex(),
			"quantity", decimal(req.Quantity),
			"price", decimal(req.Price),
			"err", err,
		)
		return Receipt{}, err
	}

	m.accepted(ctx, receipt)
	return receipt, nil
}

func (m *Marketplace) submitSellLocked(ctx context.Context, submitter common.Address, b *book, req SellRequest) (Receipt, error) {
	if err := validateOrder(req.Quantity, req.Price); err != nil {
		return Receipt{}, err
	}
	if err := m.loadLocked(submitter, b); err != nil {
		return Receipt{}, err
	}

	balance, err := m.tokens.AvailableTokenBalance(ctx, submitter)
	if err != nil {
		return Receipt{}, fmt.Errorf("token balance of %s: %w", submitter.Hex(), err)
	}

	// Tokens already promised to earlier sell orders are not available again.
	available := new(uint256.Int)
	if balance != nil && balance.Gt(b.escrow.Tokens) {
		available.Sub(balance, b.escrow.Tokens)
	}
	if err := CheckSell(req.Quantity, req.Price, available); err != nil {
		return Receipt{}, err
	}

	committed, overflow := new(uint256.Int).AddOverflow(b.escrow.Tokens, req.Quantity)
	if overflow {
		return Receipt{}, fmt.Errorf("%w: escrowed tokens %s + quantity %s", ErrCostOverflow, b.escrow.Tokens.Dec(), req.Quantity.Dec())
	}

	order := m.newOrder(submitter, b.escrow.Orders, Sell, req.Quantity, req.Price, new(uint256.Int), req.Reference)
	if err := m.ledger.Append(order); err != nil {
		return Receipt{}, fmt.Errorf("append sell order: %w", err)
	}

	b.escrow.Tokens = committed
	b.escrow.Orders++
	return Receipt{OrderID: order.ID, Order: order, Refund: new(uint256.Int)}, nil
}

func (m *Marketplace) newOrder(submitter common.Address, seq uint64, side OrderType, quantity, price, cost *uint256.Int, ref uint64) Order {
	return Order{
		ID:        OrderID(submitter, seq),
		Submitter: submitter,
		Seq:       seq,
		Type:      side,
		Quantity:  quantity.Clone(),
		Price:     price.Clone(),
		Cost:      cost.Clone(),
		Reference: ref,
		CreatedAt: m.Clock.Now().UnixMilli(),
	}
}

func (m *Marketplace) accepted(ctx context.Context, r Receipt) {
	o := r.Order
	m.Logger.Infow("order_accepted",
		"order_id", o.ID,
		"side", o.Type.String(),
		"submitter", o.Submitter.Hex(),
		"seq", o.Seq,
		"quantity", o.Quantity.Dec(),
		"price", o.Price.Dec(),
		"cost", o.Cost.Dec(),
	)

	if m.Publisher == nil {
		return
	}
	// The order is already recorded; a caller going away must not cancel its event.
	if err := m.Publisher.Publish(context.WithoutCancel(ctx), EventFor(o)); err != nil {
		m.Logger.Warnw("order_publish_failed", "order_id", o.ID, "err", err)
	}
}

// GetOrders returns every order recorded for submitter, oldest first.
func (m *Marketplace) GetOrders(submitter common.Address) ([]Order, error) {
	return m.ledger.Orders(submitter)
}

// Escrow returns the collateral submitter has locked across all orders.
func (m *Marketplace) Escrow(submitter common.Address) (Escrow, error) {
	b := m.bookFor(submitter)
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := m.loadLocked(submitter, b); err != nil {
		return Escrow{}, err
	}
	return b.escrow.Clone(), nil
}

// EventFor converts an accepted order to its published form.
func EventFor(o Order) events.Event {
	return events.Event{
		Kind:      events.KindOrderAccepted,
		OrderID:   o.ID,
		Submitter: o.Submitter.Hex(),
		OrderType: uint8(o.Type),
		Quantity:  o.Quantity.Dec(),
		Price:     o.Price.Dec(),
		Cost:      o.Cost.Dec(),
		Reference: o.Reference,
		Seq:       o.Seq,
		CreatedAt: o.CreatedAt,
	}
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.Dec()
}
