package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadEngineParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero threshold", func(c *Config) { c.Engine.ThresholdBps = 0 }, "threshold_bps"},
		{"odd liquidity", func(c *Config) { c.Engine.InitialLiquidity = 101 }, "even"},
		{"fee too high", func(c *Config) { c.Engine.FeeBps = 10000 }, "fee_bps"},
		{"weights off scale", func(c *Config) { c.Engine.RaffleWeightBps = 8000 }, "10000"},
		{"zero batch", func(c *Config) { c.Engine.SettleBatchSize = 0 }, "settle_batch_size"},
		{"empty treasury", func(c *Config) { c.Treasury.Account = " " }, "treasury"},
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_SettleModeNeedsTarget(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "settle"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle: round")
	assert.Contains(t, err.Error(), "settle: winner")

	cfg.Settle.Round = 42
	cfg.Settle.Winner = "alice"
	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "engine"
log_level = "debug"

[engine]
threshold_bps = 2500
fee_bps = 100

[treasury]
account = "house"
initial_balance = 5000000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("RAFFLE_ENGINE_FEE_BPS", "300")
	t.Setenv("RAFFLE_REDIS_ENABLED", "true")
	t.Setenv("RAFFLE_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(2500), cfg.Engine.ThresholdBps)
	assert.Equal(t, int64(300), cfg.Engine.FeeBps, "env must override file")
	assert.Equal(t, "house", cfg.Treasury.Account)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, int64(7000), cfg.Engine.RaffleWeightBps)
	assert.Equal(t, 50, cfg.Engine.SettleBatchSize)

	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig_HidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "abc123"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	red.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
