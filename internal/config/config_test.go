package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "orbit"
	cfg.LogLevel = "chatty"
	cfg.Redis.Addr = ""
	cfg.Market.VaultAddress = "not-an-address"
	cfg.Market.MinBidIncrement = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "vault_address")
	assert.Contains(t, err.Error(), "min_bid_increment")
}

func TestValidateArchiveOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidateMintModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "mint"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mint: private_key")
	assert.Contains(t, err.Error(), "mint: asset")
	assert.Contains(t, err.Error(), "mint: amount")

	cfg.Mint.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Mint.Asset = "0x00000000000000000000000000000000000aaaa1"
	cfg.Mint.Recipient = "0x00000000000000000000000000000000000000c1"
	cfg.Mint.Amount = 1
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "migrate"

[postgres]
host = "db.internal"
port = 5433

[market]
auction_duration = "24h"
min_bid_increment = 5

[server]
max_clock_skew = "30s"
`), 0o600))

	t.Setenv("MARKETD_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("MARKETD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "migrate", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, 24*time.Hour, cfg.Market.AuctionDuration.Duration)
	assert.Equal(t, int64(5), cfg.Market.MinBidIncrement)
	assert.Equal(t, 30*time.Second, cfg.Server.MaxClockSkew.Duration)

	// Env overrides win over both defaults and file values.
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched values keep their defaults.
	assert.Equal(t, "marketd", cfg.Postgres.Database)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Mint.PrivateKey = "hunter2"

	red := RedactedConfig(&cfg)
	assert.NotContains(t, red.Postgres.Password, "hunter2")
	assert.NotContains(t, red.Redis.Password, "hunter2")
	assert.NotContains(t, red.S3.SecretKey, "hunter2")
	assert.NotContains(t, red.Mint.PrivateKey, "hunter2")
}
