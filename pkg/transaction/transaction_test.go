package transaction

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/seedmarket/pkg/crypto"
)

func signedBuy(t *testing.T, v *Verifier, signer *crypto.Signer) *SignedTransaction {
	t.Helper()
	tx := &SignedTransaction{
		Type: TxTypeOrder,
		Order: FromEIP712Order(&crypto.OrderEIP712{
			OrderType: 0,
			Quantity:  uint256.MustFromDecimal("100000000000000000000"),
			Price:     uint256.MustFromDecimal("400000000000000000"),
			Value:     uint256.MustFromDecimal("40000000000000000000"),
			Nonce:     uint256.NewInt(1),
			Owner:     signer.Address(),
		}),
	}
	require.NoError(t, v.Sign(signer, tx))
	return tx
}

func TestSignedOrderRoundTrip(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	v := NewVerifier(crypto.DefaultDomain())

	tx := signedBuy(t, v, signer)
	data, err := tx.Serialize()
	require.NoError(t, err)

	parsed, err := ParseTransaction(data)
	require.NoError(t, err)

	order, err := v.VerifyOrderTransaction(parsed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), order.Owner)
	assert.Equal(t, "40000000000000000000", order.Value.Dec())
}

func TestTamperedOrderRejected(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	v := NewVerifier(crypto.DefaultDomain())

	tx := signedBuy(t, v, signer)
	tx.Order.Value = "1"

	_, err := v.VerifyOrderTransaction(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWrongOwnerRejected(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	v := NewVerifier(crypto.DefaultDomain())

	tx := signedBuy(t, v, signer)
	tx.Order.Owner = other.Address().Hex()

	_, err := v.VerifyOrderTransaction(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseTransactionErrors(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"no type":        `{"signature":"0x00"}`,
		"no signature":   `{"type":"order","order":{}}`,
		"no payload":     `{"type":"order","signature":"0x00"}`,
		"bad order type": `{"type":"order","signature":"0x00","order":{"orderType":2,"owner":"0x0000000000000000000000000000000000000001"}}`,
		"bad owner":      `{"type":"order","signature":"0x00","order":{"orderType":0,"owner":"alice"}}`,
		"sell value":     `{"type":"order","signature":"0x00","order":{"orderType":1,"value":"5","owner":"0x0000000000000000000000000000000000000001"}}`,
		"unknown type":   `{"type":"cancel","signature":"0x00"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTransaction([]byte(body))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestBadAmountsAndSignature(t *testing.T) {
	p := &OrderPayload{Quantity: "abc", Price: "1", Nonce: "1"}
	_, err := p.ToEIP712Order()
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = decodeSignature("0x1234")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = decodeSignature("zz")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
