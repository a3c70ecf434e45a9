package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/mintmarket/marketd/internal/blob/s3"
	"github.com/mintmarket/marketd/internal/cache/redis"
	"github.com/mintmarket/marketd/internal/config"
	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/notify"
	"github.com/mintmarket/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	ListingStore domain.ListingStore
	AuctionStore domain.AuctionStore
	EscrowStore  domain.EscrowStore
	FundsStore   domain.FundsStore
	AssetStore   domain.AssetStore
	TokenStore   domain.TokenStore
	RoleStore    domain.RoleStore
	ParamStore   domain.ParamStore
	AuditStore   domain.AuditStore
	Payouts      domain.PaymentGateway

	// Runtime coordination
	ListingCache domain.ListingCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Archival
	Archiver *s3blob.ArchiveImpl

	// Notifications
	Notifier *notify.Notifier

	// Clients kept for health probes and migrations.
	Postgres *postgres.Client
	Redis    *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
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
	deps.Postgres = pgClient

	pool := pgClient.Pool()
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.EscrowStore = postgres.NewEscrowStore(pool)
	deps.FundsStore = postgres.NewFundsStore(pool)
	deps.AssetStore = postgres.NewAssetStore(pool)
	deps.TokenStore = postgres.NewTokenStore(pool)
	deps.RoleStore = postgres.NewRoleStore(pool)
	deps.ParamStore = postgres.NewParamStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Payouts = postgres.NewPayoutGateway(pool, logger)

	// --- Redis ---
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
	deps.Redis = redisClient

	deps.ListingCache = redis.NewListingCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
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

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			postgres.NewListingStore(pool),
			postgres.NewAuctionStore(pool),
			deps.AuditStore,
			cfg.Archive.BatchSize,
		)
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

	return deps, cleanup, nil
}
