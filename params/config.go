package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Chain struct {
	// Network selects the Infura endpoint when RPCURL is empty, e.g. "optimism-mainnet".
	Network string
	APIKey  string
	// RPCURL must be a websocket endpoint; log and head subscriptions need it.
	RPCURL     string
	PrivateKey string

	MarketManager common.Address   // FuturesMarketManager, used to discover markets
	ExchangeRates common.Address   // round counter oracle
	Markets       []common.Address // explicit market list, overrides discovery

	RateLimit float64 // RPC queries per second, 0 = unlimited
	RateBurst int
}

type Keeper struct {
	QueryTimeout   time.Duration // per base-asset / round lookup
	ConfirmTimeout time.Duration // execution submit + receipt wait
	BlockBuffer    int
	EventBuffer    int

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

type Service struct {
	APIAddr     string
	LogFile     string
	LogLevel    string
	JournalPath string // empty keeps the execution journal in memory
}

type Config struct {
	Chain   Chain
	Keeper  Keeper
	Service Service
}

func Default() Config {
	return Config{
		Chain: Chain{
			Network:   "optimism-mainnet",
			RateLimit: 20,
			RateBurst: 5,
		},
		Keeper: Keeper{
			QueryTimeout:   10 * time.Second,
			ConfirmTimeout: 2 * time.Minute,
			BlockBuffer:    64,
			EventBuffer:    1024,
			ReconnectBase:  time.Second,
			ReconnectMax:   30 * time.Second,
		},
		Service: Service{
			APIAddr:  ":8080",
			LogFile:  "data/keeper.log",
			LogLevel: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.Network = getEnv("NETWORK", cfg.Chain.Network)
	cfg.Chain.APIKey = os.Getenv("API_KEY")
	cfg.Chain.RPCURL = os.Getenv("RPC_URL")
	cfg.Chain.PrivateKey = os.Getenv("PRIVATE_KEY")

	if addr := os.Getenv("FUTURES_MARKET_MANAGER"); addr != "" {
		cfg.Chain.MarketManager = common.HexToAddress(addr)
	}
	if addr := os.Getenv("EXCHANGE_RATES"); addr != "" {
		cfg.Chain.ExchangeRates = common.HexToAddress(addr)
	}
	// Example: "0xaaa...,0xbbb..."
	if markets := os.Getenv("FUTURES_MARKETS"); markets != "" {
		for _, s := range strings.Split(markets, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Chain.Markets = append(cfg.Chain.Markets, common.HexToAddress(s))
			}
		}
	}

	if v := os.Getenv("RPC_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chain.RateLimit = f
		}
	}
	cfg.Chain.RateBurst = getEnvInt("RPC_RATE_BURST", cfg.Chain.RateBurst)

	cfg.Keeper.QueryTimeout = getEnvMillis("QUERY_TIMEOUT_MS", cfg.Keeper.QueryTimeout)
	cfg.Keeper.ConfirmTimeout = getEnvMillis("CONFIRM_TIMEOUT_MS", cfg.Keeper.ConfirmTimeout)
	cfg.Keeper.ReconnectBase = getEnvMillis("RECONNECT_BASE_MS", cfg.Keeper.ReconnectBase)
	cfg.Keeper.ReconnectMax = getEnvMillis("RECONNECT_MAX_MS", cfg.Keeper.ReconnectMax)
	cfg.Keeper.BlockBuffer = getEnvInt("BLOCK_BUFFER", cfg.Keeper.BlockBuffer)
	cfg.Keeper.EventBuffer = getEnvInt("EVENT_BUFFER", cfg.Keeper.EventBuffer)

	cfg.Service.APIAddr = getEnv("API_ADDR", cfg.Service.APIAddr)
	// An explicitly empty LOG_FILE logs to the console only.
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.Service.LogFile = strings.TrimSpace(v)
	}
	cfg.Service.LogLevel = getEnv("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.Service.JournalPath = os.Getenv("JOURNAL_PATH")

	return cfg
}

// Endpoint returns the websocket RPC URL, deriving an Infura URL from NETWORK and API_KEY
// when RPC_URL is not set.
func (c Chain) Endpoint() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	if c.APIKey == "" {
		return ""
	}
	return fmt.Sprintf("wss://%s.infura.io/ws/v3/%s", c.Network, c.APIKey)
}

// Validate reports missing settings the keeper cannot start without.
func (c Config) Validate() error {
	if c.Chain.Endpoint() == "" {
		return fmt.Errorf("RPC_URL or API_KEY is required")
	}
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.Chain.ExchangeRates == (common.Address{}) {
		return fmt.Errorf("EXCHANGE_RATES address is required")
	}
	if len(c.Chain.Markets) == 0 && c.Chain.MarketManager == (common.Address{}) {
		return fmt.Errorf("FUTURES_MARKETS or FUTURES_MARKET_MANAGER is required")
	}
	if c.Keeper.BlockBuffer <= 0 || c.Keeper.EventBuffer <= 0 {
		return fmt.Errorf("BLOCK_BUFFER and EVENT_BUFFER must be positive")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
