package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/seedmarket/pkg/marketplace"
)

// orderRecord is the stored form of marketplace.Order. Amounts are decimal
// strings so records stay readable with any JSON tool.
type orderRecord struct {
	ID        string `json:"id"`
	Submitter string `json:"submitter"`
	Seq       uint64 `json:"seq"`
	Type      uint8  `json:"orderType"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Cost      string `json:"cost"`
	Reference uint64 `json:"reference"`
	CreatedAt int64  `json:"createdAt"`
}

func encodeOrder(o marketplace.Order) ([]byte, error) {
	o = o.Clone()
	return json.Marshal(orderRecord{
		ID:        o.ID,
		Submitter: o.Submitter.Hex(),
		Seq:       o.Seq,
		Type:      uint8(o.Type),
		Quantity:  o.Quantity.Dec(),
		Price:     o.Price.Dec(),
		Cost:      o.Cost.Dec(),
		Reference: o.Reference,
		CreatedAt: o.CreatedAt,
	})
}

func decodeOrder(data []byte) (marketplace.Order, error) {
	var rec orderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return marketplace.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	typ, err := marketplace.ParseOrderType(rec.Type)
	if err != nil {
		return marketplace.Order{}, err
	}
	quantity, err := uint256.FromDecimal(rec.Quantity)
	if err != nil {
		return marketplace.Order{}, fmt.Errorf("order %s quantity: %w", rec.ID, err)
	}
	price, err := uint256.FromDecimal(rec.Price)
	if err != nil {
		return marketplace.Order{}, fmt.Errorf("order %s price: %w", rec.ID, err)
	}
	cost, err := uint256.FromDecimal(rec.Cost)
	if err != nil {
		return marketplace.Order{}, fmt.Errorf("order %s cost: %w", rec.ID, err)
	}

	return marketplace.Order{
		ID:        rec.ID,
		Submitter: common.HexToAddress(rec.Submitter),
		Seq:       rec.Seq,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		Cost:      cost,
		Reference: rec.Reference,
		CreatedAt: rec.CreatedAt,
	}, nil
}
