package marketplace

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the append-only record of accepted orders, keyed by submitter.
// Orders for one submitter come back in insertion order.
type Ledger interface {
	// Append records order. order.Seq must equal the number of orders already
	// recorded for order.Submitter.
	Append(order Order) error
	// Orders returns a snapshot of submitter's orders; empty when none.
	Orders(submitter common.Address) ([]Order, error)
}

// MemoryLedger keeps orders in process memory
type MemoryLedger struct {
	mu     sync.RWMutex
	orders map[common.Address][]Order
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{orders: make(map[common.Address][]Order)}
}

func (l *MemoryLedger) Append(order Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.orders[order.Submitter]
	if order.Seq != uint64(len(existing)) {
		return fmt.Errorf("%w: %s has %d orders, got seq %d", ErrSequenceGap, order.Submitter.Hex(), len(existing), order.Seq)
	}
	l.orders[order.Submitter] = append(existing, order.Clone())
	return nil
}

func (l *MemoryLedger) Orders(submitter common.Address) ([]Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	existing := l.orders[submitter]
	out := make([]Order, len(existing))
	for i, o := range existing {
		out[i] = o.Clone()
	}
	return out, nil
}
