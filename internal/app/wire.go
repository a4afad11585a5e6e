package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/arb"
	s3blob "github.com/defolio/defolio/internal/blob/s3"
	"github.com/defolio/defolio/internal/bridge"
	redcache "github.com/defolio/defolio/internal/cache/redis"
	"github.com/defolio/defolio/internal/chain"
	"github.com/defolio/defolio/internal/config"
	"github.com/defolio/defolio/internal/crypto"
	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/notify"
	"github.com/defolio/defolio/internal/orchestrator"
	"github.com/defolio/defolio/internal/platform/okx"
	"github.com/defolio/defolio/internal/service"
	"github.com/defolio/defolio/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Postgres *postgres.Client

	BridgeStore   domain.BridgeTxStore
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	Exchange *okx.Client
	Engine   *arb.Engine

	Wallet  *chain.WSProvider
	Session *chain.Session

	ArbService  *service.ArbService
	PlanService *service.PlanService
	Queue       *bridge.Queue
}

// needsPostgres reports whether a mode requires the database.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
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

		deps.Postgres = pgClient
		deps.BridgeStore = postgres.NewBridgeTxStore(pgClient)
		deps.PositionStore = postgres.NewPositionStore(pgClient)
		deps.AuditStore = postgres.NewAuditStore(pgClient)
	}

	// --- Redis (rate cache + locks) ---
	var rateCache domain.RateCache
	var lockMgr domain.LockManager
	if cfg.Redis.Enabled {
		redisClient, err := redcache.NewClient(ctx, redcache.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		rateCache = redcache.NewFundingCache(redisClient, 0)
		lockMgr = redcache.NewLockManager(redisClient)
	}

	// --- Notifications ---
	var channels []notify.Notifier
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		channels = append(channels, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	var notifier notify.Notifier = notify.Nop{}
	if len(channels) > 0 {
		notifier = notify.NewMulti(logger, channels...)
	}

	// --- Exchange client ---
	secret, err := crypto.ResolveSecret(crypto.SecretConfig{
		RawSecret:     cfg.Exchange.ApiSecret,
		EncryptedPath: cfg.Exchange.EncryptedSecretPath,
		Password:      cfg.Exchange.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchange secret: %w", err)
	}
	auth := &crypto.ExchangeAuth{
		Key:        cfg.Exchange.ApiKey,
		Secret:     secret,
		Passphrase: cfg.Exchange.ApiPassphrase,
		Sandbox:    cfg.Exchange.Sandbox,
	}
	deps.Exchange = okx.NewClient(cfg.Exchange.BaseURL, auth)
	deps.Engine = arb.NewEngine(deps.Exchange, logger)

	arbCfg := domain.ArbConfig{
		MinAnnualizedRate:   decimal.NewFromFloat(cfg.Arbitrage.MinAnnualizedRate),
		MaxEntryCostRatio:   decimal.NewFromFloat(cfg.Arbitrage.MaxEntryCostRatio),
		FundingEventsPerDay: cfg.Arbitrage.FundingEventsPerDay,
		TakerFeeRate:        decimal.NewFromFloat(cfg.Arbitrage.TakerFeeRate),
		SlippageRate:        decimal.NewFromFloat(cfg.Arbitrage.SlippageRate),
		CapitalUSD:          decimal.NewFromFloat(cfg.Arbitrage.CapitalUSD),
	}
	deps.ArbService = service.NewArbService(
		deps.Engine, arbCfg, cfg.Arbitrage.Symbols,
		lockMgr, rateCache, deps.PositionStore, deps.AuditStore, notifier, logger,
	)

	// Serve mode also carries the chain signing stack.
	if cfg.Mode == "serve" {
		receipts, err := chain.NewRPCReceiptReader(cfg.RPCEndpoints())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: rpc clients: %w", err)
		}
		closers = append(closers, receipts.Close)

		deps.Wallet = chain.NewWSProvider(cfg.Signing.WalletTimeout.Duration, logger)
		deps.Session = chain.NewSession(deps.Wallet, receipts, chain.SessionConfig{
			PollInterval: cfg.Signing.ReceiptPollInterval.Duration,
			MaxAttempts:  cfg.Signing.ReceiptMaxAttempts,
		}, logger)

		orch := orchestrator.New(deps.Session, nil, logger)

		var archiver service.Archiver
		if cfg.S3.Enabled {
			blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
				Bucket:          cfg.S3.Bucket,
				Region:          cfg.S3.Region,
				Endpoint:        cfg.S3.Endpoint,
				AccessKeyID:     cfg.S3.AccessKey,
				SecretAccessKey: cfg.S3.SecretKey,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			archiver = s3blob.NewArchiver(blobClient, logger)
		}

		deps.PlanService = service.NewPlanService(orch, deps.AuditStore, notifier, archiver, logger)
		deps.Queue = bridge.NewQueue(deps.BridgeStore, deps.AuditStore, deps.Session, logger)
	}

	return deps, cleanup, nil
}
