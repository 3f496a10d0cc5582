package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RAFFLE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RAFFLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setInt64(&cfg.Engine.ThresholdBps, "RAFFLE_ENGINE_THRESHOLD_BPS")
	setInt64(&cfg.Engine.InitialLiquidity, "RAFFLE_ENGINE_INITIAL_LIQUIDITY")
	setInt64(&cfg.Engine.FeeBps, "RAFFLE_ENGINE_FEE_BPS")
	setInt64(&cfg.Engine.RaffleWeightBps, "RAFFLE_ENGINE_RAFFLE_WEIGHT_BPS")
	setInt64(&cfg.Engine.SentimentWeightBps, "RAFFLE_ENGINE_SENTIMENT_WEIGHT_BPS")
	setInt(&cfg.Engine.SettleBatchSize, "RAFFLE_ENGINE_SETTLE_BATCH_SIZE")

	// ── Treasury ──
	setStr(&cfg.Treasury.Account, "RAFFLE_TREASURY_ACCOUNT")
	setInt64(&cfg.Treasury.InitialBalance, "RAFFLE_TREASURY_INITIAL_BALANCE")
	setInt64(&cfg.Treasury.EngineAllowance, "RAFFLE_TREASURY_ENGINE_ALLOWANCE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "RAFFLE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "RAFFLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RAFFLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RAFFLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RAFFLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RAFFLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RAFFLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RAFFLE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RAFFLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RAFFLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RAFFLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RAFFLE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RAFFLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RAFFLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RAFFLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RAFFLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RAFFLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RAFFLE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RAFFLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RAFFLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RAFFLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "RAFFLE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RAFFLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RAFFLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RAFFLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RAFFLE_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "RAFFLE_FEED_WS_URL")
	setStringSlice(&cfg.Feed.MirrorChannels, "RAFFLE_FEED_MIRROR_CHANNELS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RAFFLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RAFFLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RAFFLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RAFFLE_NOTIFY_EVENTS")

	// ── Settle ──
	setInt64(&cfg.Settle.Round, "RAFFLE_SETTLE_ROUND")
	setStr(&cfg.Settle.Winner, "RAFFLE_SETTLE_WINNER")

	// ── Top-level ──
	setStr(&cfg.Mode, "RAFFLE_MODE")
	setStr(&cfg.LogLevel, "RAFFLE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
