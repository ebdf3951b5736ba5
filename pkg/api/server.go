package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/seedmarket/pkg/account"
	"github.com/uhyunpark/seedmarket/pkg/app"
	"github.com/uhyunpark/seedmarket/pkg/marketplace"
	"github.com/uhyunpark/seedmarket/pkg/storage"
	"github.com/uhyunpark/seedmarket/pkg/token"
	"github.com/uhyunpark/seedmarket/pkg/transaction"
	"github.com/uhyunpark/seedmarket/pkg/util"
)

const maxBodyBytes = 64 << 10

type Options struct {
	AllowedOrigins []string
	DevEndpoints   bool
	TxLog          storage.WAL // submission journal, nil disables
	Logger         *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	app    *app.App
	router *mux.Router
	hub    *Hub
	txLog  storage.WAL
	logger *zap.SugaredLogger
	opts   Options

	mu   sync.Mutex
	http *http.Server
}

func NewServer(application *app.App, hub *Hub, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = util.NopSugar()
	}
	if opts.TxLog == nil {
		opts.TxLog = storage.NewNopWAL()
	}

	s := &Server{
		app:    application,
		router: mux.NewRouter(),
		hub:    hub,
		txLog:  opts.TxLog,
		logger: opts.Logger,
		opts:   opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/token", s.handleGetToken).Methods("GET")

	if s.opts.DevEndpoints {
		dev := api.PathPrefix("/dev").Subrouter()
		dev.HandleFunc("/deposit", s.handleDevDeposit).Methods("POST")
		dev.HandleFunc("/withdraw", s.handleDevWithdraw).Methods("POST")
		dev.HandleFunc("/mint", s.handleDevMint).Methods("POST")
		dev.HandleFunc("/approve", s.handleDevApprove).Methods("POST")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) httpServer(addr string) *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		s.http = &http.Server{
			Addr:              addr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s.http
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a clean
// stop, including when Shutdown ran first.
func (s *Server) Start(addr string) error {
	srv := s.httpServer(addr)
	s.logger.Infow("api_listening", "addr", addr, "dev_endpoints", s.opts.DevEndpoints)
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer("").Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}

	info, err := s.app.AccountInfo(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "account lookup failed", err.Error())
		return
	}

	respondJSON(w, AccountInfo{
		Address:        info.Address.Hex(),
		Balance:        info.Balance.Dec(),
		Nonce:          info.Nonce,
		EscrowedFunds:  info.Escrow.Funds.Dec(),
		EscrowedTokens: info.Escrow.Tokens.Dec(),
		OrderCount:     info.Escrow.Orders,
		TokenBalance:   info.TokenBalance.Dec(),
		TokenAllowance: info.TokenAllowance.Dec(),
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	info := s.app.TokenInfo()
	respondJSON(w, TokenInfo{
		Symbol:        info.Symbol,
		Decimals:      info.Decimals,
		TotalSupply:   info.TotalSupply.Dec(),
		MarketAddress: info.MarketAddress.Hex(),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}

	orders, err := s.app.GetOrders(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order lookup failed", err.Error())
		return
	}

	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = toOrderInfo(o)
	}
	respondJSON(w, response)
}

func toOrderInfo(o marketplace.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Submitter: o.Submitter.Hex(),
		Seq:       o.Seq,
		OrderType: uint8(o.Type),
		Side:      o.Type.String(),
		Quantity:  o.Quantity.Dec(),
		Price:     o.Price.Dec(),
		Cost:      o.Cost.Dec(),
		Reference: o.Reference,
		CreatedAt: o.CreatedAt,
	}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	tx, err := transaction.ParseTransaction(body)
	if err != nil {
		s.journal("order_submit", "", err)
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}

	receipt, err := s.app.ApplySignedOrder(r.Context(), tx)
	if err != nil {
		s.journal("order_submit", tx.Order.Owner, err)
		status, code := classify(err)
		s.logger.Infow("order_submit_rejected", "owner", tx.Order.Owner, "status", status, "err", err)
		respondError(w, status, code, err.Error())
		return
	}

	s.journal("order_submit", tx.Order.Owner, nil, "order_id", receipt.OrderID)
	respondJSON(w, SubmitOrderResponse{
		Status:  "accepted",
		OrderID: receipt.OrderID,
		Refund:  receipt.Refund.Dec(),
	})
}

// classify maps domain errors to an HTTP status and a stable error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, marketplace.ErrCostMismatch):
		return http.StatusUnprocessableEntity, "cost mismatch"
	case errors.Is(err, marketplace.ErrInsufficientCost):
		return http.StatusUnprocessableEntity, "insufficient cost"
	case errors.Is(err, marketplace.ErrInsufficientToken):
		return http.StatusUnprocessableEntity, "insufficient token"
	case errors.Is(err, marketplace.ErrCostOverflow):
		return http.StatusUnprocessableEntity, "cost overflow"
	case errors.Is(err, account.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, transaction.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid signature"
	case errors.Is(err, account.ErrNonceTooLow):
		return http.StatusUnauthorized, "nonce too low"
	case errors.Is(err, transaction.ErrMalformed),
		errors.Is(err, app.ErrNonceOutOfRange),
		errors.Is(err, marketplace.ErrInvalidQuantity),
		errors.Is(err, marketplace.ErrInvalidPrice),
		errors.Is(err, account.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) decodeDevRequest(w http.ResponseWriter, r *http.Request) (common.Address, *uint256.Int, bool) {
	var req DevAmountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, nil, false
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return common.Address{}, nil, false
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return common.Address{}, nil, false
	}
	return common.HexToAddress(req.Address), amount, true
}

func (s *Server) handleDevDeposit(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeDevRequest(w, r)
	if !ok {
		return
	}
	if err := s.app.Deposit(addr, amount); err != nil {
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDevWithdraw(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeDevRequest(w, r)
	if !ok {
		return
	}
	if err := s.app.Withdraw(addr, amount); err != nil {
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDevMint(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeDevRequest(w, r)
	if !ok {
		return
	}
	if err := s.app.Mint(addr, amount); err != nil {
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDevApprove(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeDevRequest(w, r)
	if !ok {
		return
	}
	s.app.Approve(addr, amount)
	respondJSON(w, map[string]string{"status": "ok", "spender": s.app.MarketAddress().Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// journal appends one submission outcome to the transaction log
func (s *Server) journal(event, owner string, err error, kv ...string) {
	entry := map[string]string{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"event":     event,
		"owner":     owner,
		"status":    "accepted",
	}
	if err != nil {
		entry["status"] = "rejected"
		entry["error"] = err.Error()
	}
	for i := 0; i+1 < len(kv); i += 2 {
		entry[kv[i]] = kv[i+1]
	}

	if werr := storage.AppendJSON(s.txLog, entry); werr != nil {
		s.logger.Warnw("tx_log_write_failed", "err", werr)
	}
}
