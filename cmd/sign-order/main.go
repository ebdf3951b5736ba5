package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/seedmarket/pkg/crypto"
	"github.com/uhyunpark/seedmarket/pkg/marketplace"
	"github.com/uhyunpark/seedmarket/pkg/transaction"
)

type options struct {
	keyHex    string
	side      string
	quantity  string
	price     string
	value     string
	reference uint64
	nonce     uint64
	chainID   int64
	decimals  uint8
	market    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "sign-order",
		Short:         "Build and sign an EIP-712 marketplace order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.keyHex, "key", "", "hex private key (random if empty)")
	f.StringVar(&opts.side, "side", "buy", "buy or sell")
	f.StringVar(&opts.quantity, "quantity", "100000000000000000000", "token smallest units")
	f.StringVar(&opts.price, "price", "400000000000000000", "wei per whole token")
	f.StringVar(&opts.value, "value", "", "wei attached to a buy (defaults to the order cost)")
	f.Uint64Var(&opts.reference, "reference", 0, "opaque reference")
	f.Uint64Var(&opts.nonce, "nonce", 1, "strictly increasing per owner")
	f.Int64Var(&opts.chainID, "chain-id", 1337, "EIP-712 chain id")
	f.Uint8Var(&opts.decimals, "decimals", 18, "token decimals used to compute the default value")
	f.StringVar(&opts.market, "market", "0x0000000000000000000000000000000000005EED", "marketplace address")
	return cmd
}

func amount(name, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func run(out io.Writer, opts *options) error {
	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if opts.keyHex == "" {
		fmt.Fprintln(out, "Generating new keypair...")
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(opts.keyHex)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Address: %s\n", signer.Address().Hex())
	if opts.keyHex == "" {
		fmt.Fprintf(out, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Fprintln(out)

	// Step 2: Create order
	qty, err := amount("quantity", opts.quantity)
	if err != nil {
		return err
	}
	price, err := amount("price", opts.price)
	if err != nil {
		return err
	}
	order := &crypto.OrderEIP712{
		Quantity:  qty,
		Price:     price,
		Reference: opts.reference,
		Value:     new(uint256.Int),
		Nonce:     uint256.NewInt(opts.nonce),
		Owner:     signer.Address(),
	}
	switch opts.side {
	case "buy":
		order.OrderType = uint8(marketplace.Buy)
		if opts.value != "" {
			if order.Value, err = amount("value", opts.value); err != nil {
				return err
			}
		} else {
			cost, err := marketplace.RequiredCost(qty, price, marketplace.Unit(opts.decimals))
			if err != nil {
				return fmt.Errorf("cost: %w", err)
			}
			order.Value = cost
		}
	case "sell":
		order.OrderType = uint8(marketplace.Sell)
	default:
		return fmt.Errorf("side must be buy or sell, got %q", opts.side)
	}

	fmt.Fprintln(out, "Order Details:")
	fmt.Fprintf(out, "  Side: %s\n", opts.side)
	fmt.Fprintf(out, "  Quantity: %s\n", order.Quantity.Dec())
	fmt.Fprintf(out, "  Price: %s\n", order.Price.Dec())
	fmt.Fprintf(out, "  Value: %s\n", order.Value.Dec())
	fmt.Fprintf(out, "  Nonce: %s\n\n", order.Nonce.Dec())

	// Step 3: Sign with EIP-712
	domain := crypto.NewDomain(opts.chainID, common.HexToAddress(opts.market))
	verifier := transaction.NewVerifier(domain)
	signedTx := &transaction.SignedTransaction{
		Type:  transaction.TxTypeOrder,
		Order: transaction.FromEIP712Order(order),
	}
	if err := verifier.Sign(signer, signedTx); err != nil {
		return fmt.Errorf("signing: %w", err)
	}

	// Step 4: Verify round trip
	verified, err := verifier.VerifyOrderTransaction(signedTx)
	if err != nil {
		return fmt.Errorf("verifying: %w", err)
	}
	fmt.Fprintf(out, "✓ Signature VALID (signer %s)\n\n", verified.Owner.Hex())

	typedData, err := crypto.NewEIP712Signer(domain).OrderToJSON(order)
	if err != nil {
		return fmt.Errorf("typed data: %w", err)
	}
	fmt.Fprintln(out, "EIP-712 typed data (eth_signTypedData_v4):")
	fmt.Fprintln(out, typedData)
	fmt.Fprintln(out)

	txJSON, err := json.MarshalIndent(signedTx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	fmt.Fprintln(out, "To submit this order:")
	fmt.Fprintln(out, "  POST http://localhost:8080/api/v1/orders")
	fmt.Fprintln(out, "  Content-Type: application/json")
	fmt.Fprintln(out, "  Body:")
	fmt.Fprintln(out, string(txJSON))
	return nil
}
