package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func validConfig() *Config {
	return &Config{
		Port:           DefaultPort,
		Env:            DefaultEnv,
		RPCURL:         DefaultRPCURL,
		ChainID:        DefaultChainID,
		PrivateKey:     testKey,
		TokenContract:  DefaultTokenContract,
		AdminAddress:   "0x1111111111111111111111111111111111111111",
		PlatformWallet: "0x2222222222222222222222222222222222222222",
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	// 0x prefix is accepted too.
	cfg.PrivateKey = "0x" + testKey
	require.NoError(t, cfg.Validate())
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"no private key", func(c *Config) { c.PrivateKey = "" }, "PRIVATE_KEY"},
		{"short private key", func(c *Config) { c.PrivateKey = "abc123" }, "64 hex"},
		{"no rpc url", func(c *Config) { c.RPCURL = "" }, "RPC_URL"},
		{"no admin", func(c *Config) { c.AdminAddress = "" }, "ADMIN_ADDRESS"},
		{"no platform wallet", func(c *Config) { c.PlatformWallet = "" }, "PLATFORM_WALLET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errSub),
				"error %q should mention %q", err.Error(), tt.errSub)
		})
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("ADMIN_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("PLATFORM_WALLET", "0x2222222222222222222222222222222222222222")
	t.Setenv("PORT", "9090")
	t.Setenv("CHAIN_ID", "8453")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, DefaultTokenContract, cfg.TokenContract)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}
