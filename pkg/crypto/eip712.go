package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // "SeedMarketplace"
	Version           string         // "1"
	ChainID           *big.Int       // 1337 for local
	VerifyingContract common.Address // marketplace address
}

// OrderEIP712 is the typed data a wallet signs to submit an order
type OrderEIP712 struct {
	OrderType uint8        // 0 = buy, 1 = sell
	Quantity  *uint256.Int // token smallest units
	Price     *uint256.Int // wei per whole token
	Reference uint64       // opaque, caller-chosen
	Value     *uint256.Int // wei attached to a buy order; 0 for sell
	Nonce     *uint256.Int // strictly increasing per owner
	Owner     common.Address
}

var orderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": []apitypes.Type{
		{Name: "orderType", Type: "uint8"},
		{Name: "quantity", Type: "uint256"},
		{Name: "price", Type: "uint256"},
		{Name: "reference", Type: "uint64"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	},
}

// EIP712Signer handles EIP-712 typed data signing for orders
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the devnet domain with a zero verifying contract.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:    "SeedMarketplace",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

// NewDomain builds the domain for a deployment.
func NewDomain(chainID int64, verifyingContract common.Address) EIP712Domain {
	d := DefaultDomain()
	d.ChainID = big.NewInt(chainID)
	d.VerifyingContract = verifyingContract
	return d
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (e *EIP712Signer) typedData(order *OrderEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"orderType": strconv.FormatUint(uint64(order.OrderType), 10),
			"quantity":  amountString(order.Quantity),
			"price":     amountString(order.Price),
			"reference": strconv.FormatUint(order.Reference, 10),
			"value":     amountString(order.Value),
			"nonce":     amountString(order.Nonce),
			"owner":     order.Owner.Hex(),
		},
	}
}

// HashOrder returns the EIP-712 digest that should be signed
func (e *EIP712Signer) HashOrder(order *OrderEIP712) ([]byte, error) {
	typedData := e.typedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return signature, nil
}

// VerifyOrderSignature reports whether signature was produced by order.Owner
func (e *EIP712Signer) VerifyOrderSignature(order *OrderEIP712, signature []byte) (bool, error) {
	recovered, err := e.RecoverOrderSigner(order, signature)
	if err != nil {
		return false, err
	}
	return recovered == order.Owner, nil
}

func (e *EIP712Signer) RecoverOrderSigner(order *OrderEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// OrderToJSON renders the typed data in the eth_signTypedData_v4 shape
// wallets expect.
func (e *EIP712Signer) OrderToJSON(order *OrderEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(order), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
