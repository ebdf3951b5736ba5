package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/seedmarket/pkg/crypto"
)

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// VerifyOrderTransaction checks the signature against the payload's owner
// and returns the decoded order.
func (v *Verifier) VerifyOrderTransaction(tx *SignedTransaction) (*crypto.OrderEIP712, error) {
	if tx.Type != TxTypeOrder || tx.Order == nil {
		return nil, fmt.Errorf("%w: not an order transaction", ErrMalformed)
	}

	order, err := tx.Order.ToEIP712Order()
	if err != nil {
		return nil, err
	}

	sig, err := decodeSignature(tx.Signature)
	if err != nil {
		return nil, err
	}

	valid, err := v.eip712Signer.VerifyOrderSignature(order, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: signer is not %s", ErrInvalidSignature, order.Owner.Hex())
	}
	return order, nil
}

// Sign fills tx.Signature for tx.Order using signer
func (v *Verifier) Sign(signer *crypto.Signer, tx *SignedTransaction) error {
	order, err := tx.Order.ToEIP712Order()
	if err != nil {
		return err
	}
	sig, err := v.eip712Signer.SignOrder(signer, order)
	if err != nil {
		return err
	}
	tx.Signature = hexutil.Encode(sig)
	return nil
}

// decodeSignature decodes a 0x-prefixed hex signature
func decodeSignature(sig string) ([]byte, error) {
	b, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %v", ErrInvalidSignature, err)
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidSignature, len(b))
	}
	return b, nil
}
