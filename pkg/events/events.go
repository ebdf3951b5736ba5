// Package events carries accepted-order notifications out of the marketplace
// to whoever is listening: Kafka, WebSocket subscribers, tests.
package events

import (
	"context"
	"errors"
	"strings"
)

type Kind string

const KindOrderAccepted Kind = "order_accepted"

// Event is the wire shape of an accepted order. Amounts are decimal strings in
// the token's and native currency's smallest units.
type Event struct {
	Kind      Kind   `json:"kind"`
	OrderID   string `json:"orderId"`
	Submitter string `json:"submitter"`
	OrderType uint8  `json:"orderType"` // 0 = buy, 1 = sell
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Cost      string `json:"cost"`
	Reference uint64 `json:"reference"`
	Seq       uint64 `json:"seq"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// Channel is the subscription channel for the submitter's order feed.
func (e Event) Channel() string {
	return OrdersChannel(e.Submitter)
}

// OrdersChannel returns "orders:{address}" with the address lowercased so
// checksummed and plain hex subscribe to the same feed.
func OrdersChannel(address string) string {
	return "orders:" + strings.ToLower(address)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers to every publisher, even after one fails.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = Nop{}
	_ Publisher = Fanout(nil)
)
