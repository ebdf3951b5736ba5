package marketplace

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// OrderType is the side of an order. The numeric values are the wire encoding
// (0 = buy, 1 = sell) used by the API, the signed order message and storage.
type OrderType uint8

const (
	Buy OrderType = iota
	Sell
)

func (t OrderType) String() string {
	switch t {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseOrderType converts a wire value back to an OrderType.
func ParseOrderType(v uint8) (OrderType, error) {
	switch OrderType(v) {
	case Buy, Sell:
		return OrderType(v), nil
	default:
		return 0, fmt.Errorf("invalid order type: %d", v)
	}
}

// Order is one recorded buy or sell intent. Orders are immutable once appended
// to a Ledger.
type Order struct {
	ID        string         // keccak256(submitter || seq), 0x-prefixed
	Submitter common.Address // ledger key
	Seq       uint64         // position in the submitter's sequence, starting at 0
	Type      OrderType

	Quantity *uint256.Int // token smallest units
	Price    *uint256.Int // wei per whole token
	Cost     *uint256.Int // wei escrowed for a buy order; zero for sell

	Reference uint64 // caller-supplied, opaque
	CreatedAt int64  // Unix milliseconds
}

// Clone returns a deep copy so callers never share amount pointers with a ledger.
func (o Order) Clone() Order {
	o.Quantity = cloneAmount(o.Quantity)
	o.Price = cloneAmount(o.Price)
	o.Cost = cloneAmount(o.Cost)
	return o
}

type BuyRequest struct {
	Quantity      *uint256.Int
	Price         *uint256.Int
	Reference     uint64
	FundsSupplied *uint256.Int // native value attached to the submission
}

type SellRequest struct {
	Quantity  *uint256.Int
	Price     *uint256.Int
	Reference uint64
}

// Receipt is the outcome of an accepted submission.
type Receipt struct {
	OrderID string
	Order   Order
	Refund  *uint256.Int // funds supplied beyond the cost; zero for sell orders
}

// Escrow is the collateral a submitter has locked across all recorded orders.
type Escrow struct {
	Funds  *uint256.Int // wei locked by buy orders
	Tokens *uint256.Int // token units locked by sell orders
	Orders uint64       // number of recorded orders
}

func (e Escrow) Clone() Escrow {
	return Escrow{Funds: cloneAmount(e.Funds), Tokens: cloneAmount(e.Tokens), Orders: e.Orders}
}

// OrderID derives the id of the seq-th order of submitter.
func OrderID(submitter common.Address, seq uint64) string {
	var buf [common.AddressLength + 8]byte
	copy(buf[:], submitter.Bytes())
	binary.BigEndian.PutUint64(buf[common.AddressLength:], seq)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	return hexutil.Encode(h.Sum(nil))
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
