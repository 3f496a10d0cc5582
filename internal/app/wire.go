package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/jackpotlabs/rafflemarket/internal/blob/s3"
	"github.com/jackpotlabs/rafflemarket/internal/cache/redis"
	"github.com/jackpotlabs/rafflemarket/internal/config"
	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/notify"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/pricing"
	"github.com/jackpotlabs/rafflemarket/internal/service"
	"github.com/jackpotlabs/rafflemarket/internal/settlement"
	"github.com/jackpotlabs/rafflemarket/internal/store/postgres"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
	"github.com/jackpotlabs/rafflemarket/internal/treasury"
)

// Dependencies bundles everything the application modes need to operate.
// The in-memory engine (ledgers, factory, coordinator) is always built;
// the Postgres, Redis, and S3 fields stay nil when the corresponding
// backend is disabled, and the services degrade gracefully without them.
type Dependencies struct {
	// Core engine state.
	Bank        *treasury.Bank
	Positions   *tickets.Ledger
	Outcomes    *outcome.Ledger
	Oracle      *pricing.Oracle
	Factory     *factory.Factory
	Coordinator *settlement.Coordinator

	// Durable mirrors.
	RoundStore     domain.RoundStore
	ConditionStore domain.ConditionStore
	MarketStore    domain.MarketStore
	BalanceStore   domain.BalanceStore
	AuditStore     domain.AuditStore

	// Redis-backed cache, locks, and fact bus.
	QuoteCache  domain.HybridPriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Object storage.
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier

	// Services.
	Rounds      *service.RoundService
	Trades      *service.TradeService
	Settlements *service.SettlementService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL mirror ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.RoundStore = postgres.NewRoundStore(pool)
		deps.ConditionStore = postgres.NewConditionStore(pool)
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BalanceStore = postgres.NewBalanceStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		// Round archival needs the Postgres stores as its source.
		if deps.MarketStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.MarketStore,
				deps.BalanceStore,
				deps.ConditionStore,
				deps.AuditStore,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core engine ---
	deps.Bank = treasury.NewBank()
	if err := deps.Bank.Mint(cfg.Treasury.Account, cfg.Treasury.InitialBalance); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed treasury: %w", err)
	}
	allowance := cfg.Treasury.EngineAllowance
	if allowance == 0 {
		allowance = cfg.Treasury.InitialBalance
	}
	if err := deps.Bank.Approve(cfg.Treasury.Account, allowance); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: approve engine allowance: %w", err)
	}

	deps.Positions = tickets.NewLedger()
	deps.Outcomes = outcome.NewLedger(deps.Bank)

	oracle, err := pricing.NewOracle(
		cfg.Engine.RaffleWeightBps,
		cfg.Engine.SentimentWeightBps,
		deps.QuoteCache,
		logger,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: pricing oracle: %w", err)
	}
	deps.Oracle = oracle

	deps.Factory, err = factory.New(factory.Config{
		ThresholdBps:     cfg.Engine.ThresholdBps,
		InitialLiquidity: cfg.Engine.InitialLiquidity,
		FeeBps:           cfg.Engine.FeeBps,
		TreasuryAccount:  cfg.Treasury.Account,
	}, deps.Positions, deps.Outcomes, deps.Bank, deps.Oracle, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market factory: %w", err)
	}

	deps.Coordinator = settlement.New(
		deps.Positions,
		deps.Outcomes,
		deps.Factory,
		deps.Bank,
		cfg.Treasury.Account,
		cfg.Engine.SettleBatchSize,
		logger,
	)

	// --- Services ---
	deps.Rounds = service.NewRoundService(
		deps.Positions, deps.Factory,
		deps.RoundStore, deps.ConditionStore, deps.MarketStore,
		deps.SignalBus, deps.AuditStore, deps.Notifier, logger,
	)
	deps.Trades = service.NewTradeService(
		deps.Factory, deps.Outcomes, deps.Oracle,
		deps.MarketStore, deps.BalanceStore,
		deps.SignalBus, deps.AuditStore, logger,
	)
	deps.Settlements = service.NewSettlementService(
		deps.Coordinator, deps.Factory,
		deps.RoundStore, deps.ConditionStore, deps.MarketStore,
		deps.LockManager, deps.SignalBus, deps.BlobWriter,
		deps.Notifier, logger,
	)

	return deps, cleanup, nil
}
