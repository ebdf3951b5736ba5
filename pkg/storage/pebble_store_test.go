package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/seedmarket/pkg/marketplace"
)

var alice = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")

func testOrder(seq uint64, typ marketplace.OrderType) marketplace.Order {
	return marketplace.Order{
		ID:        marketplace.OrderID(alice, seq),
		Submitter: alice,
		Seq:       seq,
		Type:      typ,
		Quantity:  uint256.MustFromDecimal("100000000000000000000"),
		Price:     uint256.MustFromDecimal("400000000000000000"),
		Cost:      uint256.MustFromDecimal("40000000000000000000"),
		Reference: 42,
		CreatedAt: 1_700_000_000_000 + int64(seq),
	}
}

func openLedger(t *testing.T, dir string) *PebbleLedger {
	t.Helper()
	l, err := NewPebbleLedger(dir)
	require.NoError(t, err)
	return l
}

func TestPebbleLedgerAppendAndScan(t *testing.T) {
	l := openLedger(t, t.TempDir())
	defer l.Close()

	empty, err := l.Orders(alice)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i := uint64(0); i < 12; i++ {
		typ := marketplace.Buy
		if i%2 == 1 {
			typ = marketplace.Sell
		}
		require.NoError(t, l.Append(testOrder(i, typ)))
	}

	orders, err := l.Orders(alice)
	require.NoError(t, err)
	require.Len(t, orders, 12)
	for i, o := range orders {
		assert.Equal(t, uint64(i), o.Seq)
		assert.Equal(t, testOrder(uint64(i), o.Type), o)
	}
	assert.Equal(t, marketplace.Sell, orders[11].Type)
}

func TestPebbleLedgerRejectsGap(t *testing.T) {
	l := openLedger(t, t.TempDir())
	defer l.Close()

	assert.ErrorIs(t, l.Append(testOrder(1, marketplace.Buy)), marketplace.ErrSequenceGap)
	require.NoError(t, l.Append(testOrder(0, marketplace.Buy)))
	assert.ErrorIs(t, l.Append(testOrder(0, marketplace.Buy)), marketplace.ErrSequenceGap)
}

func TestPebbleLedgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	l := openLedger(t, dir)
	require.NoError(t, l.Append(testOrder(0, marketplace.Buy)))
	require.NoError(t, l.Append(testOrder(1, marketplace.Sell)))
	require.NoError(t, l.Close())

	l = openLedger(t, dir)
	defer l.Close()

	orders, err := l.Orders(alice)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, marketplace.OrderID(alice, 1), orders[1].ID)

	assert.ErrorIs(t, l.Append(testOrder(1, marketplace.Buy)), marketplace.ErrSequenceGap)
	require.NoError(t, l.Append(testOrder(2, marketplace.Buy)))
}

func TestPebbleLedgerBacksMarketplace(t *testing.T) {
	l := openLedger(t, t.TempDir())
	defer l.Close()

	m := marketplace.New(l, nil, 18)
	_, err := m.SubmitBuyOrder(context.Background(), alice, marketplace.BuyRequest{
		Quantity:      uint256.MustFromDecimal("100000000000000000000"),
		Price:         uint256.MustFromDecimal("400000000000000000"),
		FundsSupplied: uint256.MustFromDecimal("40000000000000000000"),
	})
	require.NoError(t, err)

	orders, err := m.GetOrders(alice)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "40000000000000000000", orders[0].Cost.Dec())
}

func TestOrderKeysSortBySeq(t *testing.T) {
	assert.Less(t, string(orderKey(alice, 9)), string(orderKey(alice, 10)))
	assert.True(t, strings.HasPrefix(string(orderKey(alice, 3)), string(orderPrefix(alice))))

	seq, err := decodeSeq(encodeSeq(77))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), seq)

	_, err = decodeSeq([]byte{1})
	assert.Error(t, err)
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.log")
	w, err := NewFileWAL(path)
	require.NoError(t, err)

	require.NoError(t, w.Append("first"))
	require.NoError(t, AppendJSON(w, map[string]string{"status": "accepted"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n{\"status\":\"accepted\"}\n", string(data))

	// writes after close surface the failure instead of dropping the line
	assert.ErrorIs(t, w.Append("late"), os.ErrClosed)
	assert.ErrorIs(t, AppendJSON(w, map[string]string{"status": "late"}), os.ErrClosed)

	// NopWAL accepts anything
	require.NoError(t, AppendJSON(NewNopWAL(), struct{}{}))
}
