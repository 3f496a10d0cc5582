// Package config defines the top-level configuration for the raffle market
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RAFFLE_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Treasury TreasuryConfig `toml:"treasury"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
	Notify   NotifyConfig   `toml:"notify"`
	Settle   SettleConfig   `toml:"settle"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the market creation and pricing parameters. All
// amounts are integers in the collateral token's smallest unit; all
// weights and rates are basis points on a 10000 scale.
type EngineConfig struct {
	// ThresholdBps is the win-probability level at which a market is
	// created for a round/participant pair.
	ThresholdBps int64 `toml:"threshold_bps"`

	// InitialLiquidity is the collateral the treasury commits per new
	// market. Must be even: half seeds each reserve.
	InitialLiquidity int64 `toml:"initial_liquidity"`

	// FeeBps is the swap fee charged on the collateral leg of each trade.
	FeeBps int64 `toml:"fee_bps"`

	// RaffleWeightBps and SentimentWeightBps blend the two pricing legs.
	// They must sum to 10000.
	RaffleWeightBps    int64 `toml:"raffle_weight_bps"`
	SentimentWeightBps int64 `toml:"sentiment_weight_bps"`

	// SettleBatchSize caps the number of markets resolved per settlement
	// batch.
	SettleBatchSize int `toml:"settle_batch_size"`
}

// TreasuryConfig holds the engine's collateral accounts.
type TreasuryConfig struct {
	// Account is the treasury's collateral account name.
	Account string `toml:"account"`

	// InitialBalance is minted into the treasury account at startup.
	InitialBalance int64 `toml:"initial_balance"`

	// EngineAllowance is the spend approval granted to the engine for
	// liquidity seeding. Zero grants InitialBalance.
	EngineAllowance int64 `toml:"engine_allowance"`
}

// PostgresConfig holds PostgreSQL connection parameters for the durable
// mirror. Disabled means the engine runs on in-memory state only.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the quote cache,
// settlement locks, and the fact bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// report and round archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds the raffle pool websocket feed parameters.
type FeedConfig struct {
	WsURL string `toml:"ws_url"`

	// MirrorChannels are pub/sub channels copied into durable streams for
	// replay. Empty disables mirroring.
	MirrorChannels []string `toml:"mirror_channels"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SettleConfig holds the one-shot settlement parameters for settle mode.
type SettleConfig struct {
	Round  int64  `toml:"round"`
	Winner string `toml:"winner"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			ThresholdBps:       1000,
			InitialLiquidity:   100_000_000,
			FeeBps:             200,
			RaffleWeightBps:    7000,
			SentimentWeightBps: 3000,
			SettleBatchSize:    50,
		},
		Treasury: TreasuryConfig{
			Account:        "treasury",
			InitialBalance: 10_000_000_000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "rafflemarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rafflemarket-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			WsURL:          "ws://localhost:8080/feed",
			MirrorChannels: []string{"positions", "markets", "trades"},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_creation_failed", "round_settled"},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"settle": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, settle)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.ThresholdBps <= 0 || c.Engine.ThresholdBps > 10000 {
		errs = append(errs, fmt.Sprintf("engine: threshold_bps must be in (0, 10000], got %d", c.Engine.ThresholdBps))
	}
	if c.Engine.InitialLiquidity <= 0 {
		errs = append(errs, "engine: initial_liquidity must be > 0")
	} else if c.Engine.InitialLiquidity%2 != 0 {
		errs = append(errs, "engine: initial_liquidity must be even")
	}
	if c.Engine.FeeBps < 0 || c.Engine.FeeBps >= 10000 {
		errs = append(errs, fmt.Sprintf("engine: fee_bps must be in [0, 10000), got %d", c.Engine.FeeBps))
	}
	if c.Engine.RaffleWeightBps+c.Engine.SentimentWeightBps != 10000 {
		errs = append(errs, fmt.Sprintf("engine: raffle_weight_bps + sentiment_weight_bps must equal 10000, got %d + %d",
			c.Engine.RaffleWeightBps, c.Engine.SentimentWeightBps))
	}
	if c.Engine.RaffleWeightBps < 0 || c.Engine.SentimentWeightBps < 0 {
		errs = append(errs, "engine: pricing weights must not be negative")
	}
	if c.Engine.SettleBatchSize < 1 {
		errs = append(errs, "engine: settle_batch_size must be >= 1")
	}

	// Treasury
	if strings.TrimSpace(c.Treasury.Account) == "" {
		errs = append(errs, "treasury: account must not be empty")
	}
	if c.Treasury.InitialBalance <= 0 {
		errs = append(errs, "treasury: initial_balance must be > 0")
	}
	if c.Treasury.EngineAllowance < 0 {
		errs = append(errs, "treasury: engine_allowance must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Feed is only required when running the engine loop.
	if strings.ToLower(c.Mode) == "engine" && strings.TrimSpace(c.Feed.WsURL) == "" {
		errs = append(errs, "feed: ws_url must not be empty in engine mode")
	}

	// Settle mode needs a target.
	if strings.ToLower(c.Mode) == "settle" {
		if c.Settle.Round <= 0 {
			errs = append(errs, "settle: round must be > 0 in settle mode")
		}
		if strings.TrimSpace(c.Settle.Winner) == "" {
			errs = append(errs, "settle: winner must not be empty in settle mode")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
