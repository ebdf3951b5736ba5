package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/seedmarket/pkg/marketplace"
)

// Options returns the Pebble tuning shared by the node's stores.
func Options() *pebble.Options {
	return &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
}

// PebbleLedger is a durable marketplace.Ledger.
type PebbleLedger struct {
	mu sync.Mutex // serializes counter read + batch commit
	db *pebble.DB
}

func NewPebbleLedger(path string) (*PebbleLedger, error) {
	db, err := pebble.Open(path, Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleLedger{db: db}, nil
}

func (l *PebbleLedger) Close() error { return l.db.Close() }

// nextSeq returns how many orders are recorded for addr.
func (l *PebbleLedger) nextSeq(addr common.Address) (uint64, error) {
	val, closer, err := l.db.Get(counterKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	defer closer.Close()
	return decodeSeq(val)
}

// Append writes the order and the advanced counter in one synced batch.
func (l *PebbleLedger) Append(order marketplace.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.nextSeq(order.Submitter)
	if err != nil {
		return err
	}
	if order.Seq != next {
		return fmt.Errorf("%w: %s has %d orders, got seq %d", marketplace.ErrSequenceGap, order.Submitter.Hex(), next, order.Seq)
	}

	data, err := encodeOrder(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(orderKey(order.Submitter, order.Seq), data, nil); err != nil {
		return err
	}
	if err := batch.Set(counterKey(order.Submitter), encodeSeq(next+1), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// Orders scans the submitter's prefix. Unlike the account store, a record that
// fails to decode is an error: skipping it would silently reorder history.
func (l *PebbleLedger) Orders(submitter common.Address) ([]marketplace.Order, error) {
	prefix := orderPrefix(submitter)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	orders := make([]marketplace.Order, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("order scan: %w", err)
	}
	return orders, nil
}

var _ marketplace.Ledger = (*PebbleLedger)(nil)
var _ marketplace.Ledger = (*marketplace.MemoryLedger)(nil)
