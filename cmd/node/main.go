package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/seedmarket/params"
	"github.com/uhyunpark/seedmarket/pkg/account"
	"github.com/uhyunpark/seedmarket/pkg/api"
	"github.com/uhyunpark/seedmarket/pkg/app"
	"github.com/uhyunpark/seedmarket/pkg/crypto"
	"github.com/uhyunpark/seedmarket/pkg/events"
	"github.com/uhyunpark/seedmarket/pkg/marketplace"
	"github.com/uhyunpark/seedmarket/pkg/storage"
	"github.com/uhyunpark/seedmarket/pkg/token"
	"github.com/uhyunpark/seedmarket/pkg/transaction"
	"github.com/uhyunpark/seedmarket/pkg/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("node: %v", err)
		stop()
		os.Exit(1)
	}
}

// run opens every node resource and releases it on return.
func run(ctx context.Context) error {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	if !common.IsHexAddress(cfg.Market.Address) {
		sugar.Errorw("invalid_market_address", "address", cfg.Market.Address)
		return fmt.Errorf("invalid market address %q", cfg.Market.Address)
	}
	marketAddr := common.HexToAddress(cfg.Market.Address)

	// ---- Storage ----
	ledger, err := storage.NewPebbleLedger(filepath.Join(cfg.Node.DataDir, "orders"))
	if err != nil {
		sugar.Errorw("order_ledger_open_failed", "err", err)
		return err
	}
	defer ledger.Close()

	accounts, err := account.Open(filepath.Join(cfg.Node.DataDir, "accounts"))
	if err != nil {
		sugar.Errorw("account_store_open_failed", "err", err)
		return err
	}
	defer accounts.Close()
	accounts.Logger = sugar
	if n, err := accounts.Warm(); err != nil {
		sugar.Warnw("account_warm_failed", "err", err)
	} else {
		sugar.Infow("accounts_loaded", "count", n)
	}

	var txLog storage.WAL = storage.NewNopWAL()
	if cfg.Node.TxLogFile != "" {
		fw, err := storage.NewFileWAL(cfg.Node.TxLogFile)
		if err != nil {
			sugar.Warnw("tx_log_open_failed", "path", cfg.Node.TxLogFile, "err", err)
		} else {
			defer fw.Close()
			txLog = fw
			sugar.Infow("tx_log_enabled", "path", cfg.Node.TxLogFile)
		}
	}

	// ---- Events ----
	hub := api.NewHub(sugar)
	go hub.Run(ctx)

	publishers := events.Fanout{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
		sugar.Infow("kafka_publisher_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- Marketplace ----
	tokens := token.NewLedger(cfg.Market.TokenSymbol, cfg.Market.TokenDecimals)

	market := marketplace.New(ledger, tokens.Source(marketAddr), cfg.Market.TokenDecimals)
	market.Logger = sugar
	market.Publisher = publishers
	if cfg.Market.RejectOversupply {
		market.Policy = marketplace.OversupplyReject
	}

	domain := crypto.NewDomain(cfg.Market.ChainID, marketAddr)
	application := app.New(app.Config{
		Accounts:      accounts,
		Market:        market,
		Tokens:        tokens,
		Verifier:      transaction.NewVerifier(domain),
		MarketAddress: marketAddr,
		Logger:        sugar,
	})

	sugar.Infow("node_starting",
		"token", cfg.Market.TokenSymbol,
		"decimals", cfg.Market.TokenDecimals,
		"chain_id", cfg.Market.ChainID,
		"market", marketAddr.Hex(),
		"oversupply", market.Policy.String(),
	)

	// ---- API ----
	server := api.NewServer(application, hub, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		DevEndpoints:   cfg.API.DevEndpoints,
		TxLog:          txLog,
		Logger:         sugar,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.API.Addr) }()

	var serveErr error
	select {
	case <-ctx.Done():
		sugar.Info("shutdown_requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("api_server_failed", "err", err)
			serveErr = fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	sugar.Info("node_stopped")
	return serveErr
}
