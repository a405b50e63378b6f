// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL        string
	ChainID       int64
	PrivateKey    string // Holding wallet key, hex-encoded, 0x prefix optional
	TokenContract string // Default settlement token (whitelisted at initialization)

	// Platform settings
	AdminAddress    string // Principal allowed to confirm payments and withdraw fees
	PlatformWallet  string // Destination for platform fee withdrawals
	RegistryBaseURL string // Event registry service (empty enables the in-memory registry)

	// Tracing
	OTLPEndpoint string

	// Security
	AdminSecret string // Bootstrap API key secret for the admin principal
}

// Defaults for local development (Base Sepolia).
const (
	DefaultRPCURL        = "https://sepolia.base.org"
	DefaultChainID       = 84532
	DefaultTokenContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
		ChainID:         getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:      os.Getenv("PRIVATE_KEY"), // Required, no default
		TokenContract:   getEnv("TOKEN_CONTRACT", DefaultTokenContract),
		AdminAddress:    os.Getenv("ADMIN_ADDRESS"),
		PlatformWallet:  os.Getenv("PLATFORM_WALLET"),
		RegistryBaseURL: os.Getenv("REGISTRY_BASE_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:     os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}

	key := c.PrivateKey
	if len(key) == 66 && key[:2] == "0x" {
		key = key[2:]
	}
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.AdminAddress == "" {
		return fmt.Errorf("ADMIN_ADDRESS is required")
	}

	if c.PlatformWallet == "" {
		return fmt.Errorf("PLATFORM_WALLET is required")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
