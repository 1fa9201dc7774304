package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ticket-market/models"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Marketplace configuration
	LedgerMode      string
	WalletProvider  string
	RequiredChainID string
	InitialChainID  string
	ClientID        string

	// Simulation ledger
	SimQueryLatency   time.Duration
	SimMutateLatency  time.Duration
	SimSeedDemo       bool
	SimStrictBuyPrice bool
	SimWalletAccounts []string

	// On-chain ledger
	ContractAddress  string
	WalletPrivateKey string
	RPCURLs          map[uint64]string

	// Ledger circuit breaker
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Notifications kept for polling clients
	NotificationFeedSize int

	// Rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads the environment, after loading a .env file when present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Marketplace
		LedgerMode:      getEnv("LEDGER_MODE", "simulation"),
		WalletProvider:  getEnv("WALLET_PROVIDER", "sim"),
		RequiredChainID: getEnv("REQUIRED_CHAIN_ID", models.Sepolia.ChainID),
		InitialChainID:  getEnv("INITIAL_CHAIN_ID", models.Sepolia.ChainID),
		ClientID:        getEnv("CLIENT_ID", "default"),

		// Simulation
		SimQueryLatency:   getEnvAsDuration("SIM_LATENCY_QUERY", "1s"),
		SimMutateLatency:  getEnvAsDuration("SIM_LATENCY_MUTATE", "2s"),
		SimSeedDemo:       getEnvAsBool("SIM_SEED_DEMO", true),
		SimStrictBuyPrice: getEnvAsBool("SIM_STRICT_BUY_PRICE", false),
		SimWalletAccounts: getEnvAsList("SIM_WALLET_ACCOUNTS", []string{"0x71C7656EC7ab88b098defB751B7401B5f6d8976F"}),

		// On-chain
		ContractAddress:  getEnv("CONTRACT_ADDRESS", ""),
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		RPCURLs:          getRPCURLs(),

		// Breaker
		BreakerMaxRequests:  uint32(getEnvAsInt("LEDGER_BREAKER_MAX_REQUESTS", 20)),
		BreakerInterval:     getEnvAsDuration("LEDGER_BREAKER_INTERVAL", "60s"),
		BreakerTimeout:      getEnvAsDuration("LEDGER_BREAKER_TIMEOUT", "30s"),
		BreakerFailureRatio: getEnvAsFloat("LEDGER_BREAKER_FAILURE_RATIO", 0.6),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-market"),

		NotificationFeedSize: getEnvAsInt("NOTIFICATION_FEED_SIZE", 50),
		RateLimitPerMinute:   getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// RequiredNetwork resolves REQUIRED_CHAIN_ID against the supported networks.
func (c *Config) RequiredNetwork() (models.Network, error) {
	n, ok := models.LookupNetwork(c.RequiredChainID)
	if !ok {
		return models.Network{}, fmt.Errorf("unsupported required chain id %q", c.RequiredChainID)
	}
	return n, nil
}

// getRPCURLs collects RPC_URL_<decimal chain id> for every supported network.
func getRPCURLs() map[uint64]string {
	urls := make(map[uint64]string)
	for _, n := range models.SupportedNetworks {
		if url := getEnv(fmt.Sprintf("RPC_URL_%d", n.ID), ""); url != "" {
			urls[n.ID] = url
		}
	}
	return urls
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
