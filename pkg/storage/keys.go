package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Order ledger key schema:
//
//   ord:<address>:<seq, 20 digits> → order record (JSON)
//   cnt:<address>                  → next sequence number (8-byte big-endian)
//
// Sequence numbers are zero-padded so a prefix scan returns orders in
// insertion order.

const (
	prefixOrder   = "ord:"
	prefixCounter = "cnt:"
)

// orderKey returns the key for the seq-th order of addr
// Format: "ord:{address}:{seq}"
func orderKey(addr common.Address, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, addr.Hex(), seq))
}

// orderPrefix returns the prefix for all orders of an account
// Format: "ord:{address}:"
func orderPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, addr.Hex()))
}

func counterKey(addr common.Address) []byte {
	return []byte(prefixCounter + addr.Hex())
}

func encodeSeq(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func decodeSeq(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid counter length: %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
