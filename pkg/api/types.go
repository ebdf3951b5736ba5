package api

// API response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings in smallest units (wei, token units).

// ==============================
// REST Response Types
// ==============================

// OrderInfo is one recorded order
type OrderInfo struct {
	ID        string `json:"id"`
	Submitter string `json:"submitter"`
	Seq       uint64 `json:"seq"`
	OrderType uint8  `json:"orderType"` // 0 = buy, 1 = sell
	Side      string `json:"side"`      // "buy" or "sell"
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Cost      string `json:"cost"` // escrowed wei, "0" for sell
	Reference uint64 `json:"reference"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// AccountInfo represents native balance, escrow and token position
type AccountInfo struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	Nonce          uint64 `json:"nonce"`
	EscrowedFunds  string `json:"escrowedFunds"`
	EscrowedTokens string `json:"escrowedTokens"`
	OrderCount     uint64 `json:"orderCount"`
	TokenBalance   string `json:"tokenBalance"`
	TokenAllowance string `json:"tokenAllowance"`
}

// TokenInfo describes the token orders are denominated in
type TokenInfo struct {
	Symbol        string `json:"symbol"`
	Decimals      uint8  `json:"decimals"`
	TotalSupply   string `json:"totalSupply"`
	MarketAddress string `json:"marketAddress"` // spender to approve, EIP-712 verifying contract
}

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status  string `json:"status"` // "accepted"
	OrderID string `json:"orderId"`
	Refund  string `json:"refund"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// Order submissions use signed JSON transactions (EIP-712).
// See pkg/transaction/types.go for the SignedTransaction structure.

// DevAmountRequest is the body of /api/v1/dev/{deposit,withdraw,mint,approve}
type DevAmountRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// ==============================
// WebSocket Message Types
// ==============================

type WSMessage struct {
	Type string      `json:"type"` // "order"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["orders:0x..."]
}
