package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/seedmarket/pkg/crypto"
)

type TxType string

const (
	TxTypeOrder TxType = "order"
)

var (
	ErrMalformed        = errors.New("malformed transaction")
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignedTransaction is the JSON envelope accepted by POST /api/v1/orders
type SignedTransaction struct {
	Type      TxType        `json:"type"`
	Order     *OrderPayload `json:"order,omitempty"`
	Signature string        `json:"signature"` // 0x-prefixed hex, 65 bytes
}

// OrderPayload is the JSON form of crypto.OrderEIP712. Amounts are decimal
// strings so 256-bit values survive JavaScript clients.
type OrderPayload struct {
	OrderType uint8  `json:"orderType"` // 0 = buy, 1 = sell
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Reference uint64 `json:"reference"`
	Value     string `json:"value,omitempty"` // wei attached to a buy, empty = 0
	Nonce     string `json:"nonce"`
	Owner     string `json:"owner"`
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q: %v", ErrMalformed, field, s, err)
	}
	return v, nil
}

// ToEIP712Order converts the payload to the typed data that was signed
func (o *OrderPayload) ToEIP712Order() (*crypto.OrderEIP712, error) {
	quantity, err := parseAmount("quantity", o.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", o.Price)
	if err != nil {
		return nil, err
	}
	value := new(uint256.Int)
	if o.Value != "" {
		if value, err = parseAmount("value", o.Value); err != nil {
			return nil, err
		}
	}
	nonce, err := parseAmount("nonce", o.Nonce)
	if err != nil {
		return nil, err
	}

	return &crypto.OrderEIP712{
		OrderType: o.OrderType,
		Quantity:  quantity,
		Price:     price,
		Reference: o.Reference,
		Value:     value,
		Nonce:     nonce,
		Owner:     common.HexToAddress(o.Owner),
	}, nil
}

func FromEIP712Order(order *crypto.OrderEIP712) *OrderPayload {
	p := &OrderPayload{
		OrderType: order.OrderType,
		Quantity:  order.Quantity.Dec(),
		Price:     order.Price.Dec(),
		Reference: order.Reference,
		Nonce:     order.Nonce.Dec(),
		Owner:     order.Owner.Hex(),
	}
	if order.Value != nil && !order.Value.IsZero() {
		p.Value = order.Value.Dec()
	}
	return p
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("%w: missing transaction type", ErrMalformed)
	}
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}

	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("%w: order type requires order payload", ErrMalformed)
		}
		if tx.Order.OrderType > 1 {
			return fmt.Errorf("%w: invalid order type %d", ErrMalformed, tx.Order.OrderType)
		}
		if !common.IsHexAddress(tx.Order.Owner) {
			return fmt.Errorf("%w: invalid order owner %q", ErrMalformed, tx.Order.Owner)
		}
		if tx.Order.OrderType == 1 && tx.Order.Value != "" && tx.Order.Value != "0" {
			return fmt.Errorf("%w: sell orders carry no value", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type: %s", ErrMalformed, tx.Type)
	}
	return nil
}

// ParseTransaction decodes and structurally validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Example:
//   {
//     "type": "order",
//     "order": {
//       "orderType": 0,
//       "quantity": "100000000000000000000",
//       "price": "400000000000000000",
//       "reference": 0,
//       "value": "40000000000000000000",
//       "nonce": "1",
//       "owner": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
//     },
//     "signature": "0x..."
//   }
