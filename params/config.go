package params

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Node struct {
	DataDir   string `env:"DATA_DIR"`
	LogFile   string `env:"LOG_FILE"`
	TxLogFile string `env:"TX_LOG_FILE"` // JSON-lines journal of API submissions, empty disables
	Verbose   bool   `env:"VERBOSE"`
}

type API struct {
	Addr           string   `env:"ADDR"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	// DevEndpoints exposes /api/v1/dev/{deposit,mint,approve}.
	// Devnet only: they move funds without a signature.
	DevEndpoints bool `env:"DEV_ENDPOINTS"`
}

type Market struct {
	TokenSymbol   string `env:"TOKEN_SYMBOL"`
	TokenDecimals uint8  `env:"TOKEN_DECIMALS"`
	ChainID       int64  `env:"CHAIN_ID"` // EIP-712 domain chain id
	// Address is the marketplace's own account: the EIP-712 verifying contract
	// and the spender token holders approve.
	Address string `env:"ADDRESS"`
	// RejectOversupply switches buy orders from refund-the-excess to exact-match.
	RejectOversupply bool `env:"REJECT_OVERSUPPLY"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","` // empty disables the publisher
	Topic   string   `env:"TOPIC"`
}

type Config struct {
	Node   Node   `envPrefix:"NODE_"`
	API    API    `envPrefix:"API_"`
	Market Market `envPrefix:"MARKET_"`
	Kafka  Kafka  `envPrefix:"KAFKA_"`
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:   "data",
			LogFile:   "data/node.log",
			TxLogFile: "data/transactions.log",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			DevEndpoints:   true, // devnet default
		},
		Market: Market{
			TokenSymbol:   "SEED",
			TokenDecimals: 18,
			ChainID:       1337,
			Address:       "0x0000000000000000000000000000000000005EED",
		},
		Kafka: Kafka{
			Topic: "marketplace.orders",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	// Unset variables leave the defaults above untouched
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Market.TokenDecimals > 77 {
		return Config{}, fmt.Errorf("token decimals out of range: %d", cfg.Market.TokenDecimals)
	}

	return cfg, nil
}
