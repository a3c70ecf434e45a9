package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mintmarket/marketd/internal/crypto"
	"github.com/mintmarket/marketd/internal/custody"
	"github.com/mintmarket/marketd/internal/notify"
	"github.com/mintmarket/marketd/internal/server"
	"github.com/mintmarket/marketd/internal/server/handler"
	"github.com/mintmarket/marketd/internal/server/ws"
	"github.com/mintmarket/marketd/internal/service"
)

const (
	// httpRateLimit caps requests per client IP within httpRateWindow.
	httpRateLimit  = 120
	httpRateWindow = time.Minute
)

// ServeMode runs the full marketplace: HTTP + WebSocket API, notification
// bridge, and the archival loop when enabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if a.cfg.Postgres.RunMigrations {
		if err := deps.Postgres.RunMigrations(ctx); err != nil {
			return fmt.Errorf("serve mode: migrations: %w", err)
		}
	}

	cust := custody.New(
		deps.AssetStore,
		deps.TokenStore,
		deps.RoleStore,
		common.HexToAddress(a.cfg.Market.VaultAddress),
		a.logger,
	)

	listingSvc := service.NewListingService(
		deps.ListingStore, deps.EscrowStore, deps.FundsStore, cust,
		deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
	).WithCache(deps.ListingCache)
	auctionSvc := service.NewAuctionService(
		deps.AuctionStore, deps.EscrowStore, deps.FundsStore, cust,
		deps.ParamStore, deps.RoleStore, deps.LockManager, deps.RateLimiter,
		deps.SignalBus, deps.AuditStore, a.logger,
	)
	escrowSvc := service.NewEscrowService(
		deps.EscrowStore, deps.FundsStore, deps.Payouts,
		deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
	)
	adminSvc := service.NewAdminService(
		deps.RoleStore, deps.AssetStore, deps.ParamStore, deps.AuditStore, a.logger,
	)

	if err := adminSvc.Bootstrap(ctx,
		common.HexToAddress(a.cfg.Market.BootstrapAdmin),
		int64(a.cfg.Market.AuctionDuration.Duration/time.Second),
		a.cfg.Market.MinBidIncrement,
	); err != nil {
		return fmt.Errorf("serve mode: bootstrap: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub bridging the signal bus to connected clients.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Notification bridge: forward marketplace events to Telegram/Discord.
	bridge := notify.NewBridge(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return bridge.Run(ctx)
	})

	// Archival loop: periodically move closed listings and auctions past the
	// retention window to object storage.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	// HTTP server.
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		MaxClockSkew: a.cfg.Server.MaxClockSkew.Duration,
		RateLimiter:  deps.RateLimiter,
		RateLimit:    httpRateLimit,
		RateWindow:   httpRateWindow,
	}, server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres,
			"redis":    deps.Redis,
		}, a.logger),
		Listings: handler.NewListingHandler(listingSvc, a.logger),
		Auctions: handler.NewAuctionHandler(auctionSvc, a.logger),
		Escrow:   handler.NewEscrowHandler(escrowSvc, a.logger),
		Admin:    handler.NewAdminHandler(adminSvc, a.logger),
		Mint:     handler.NewMintHandler(cust, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MigrateMode applies pending database migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting migrate mode")
	if err := deps.Postgres.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}

// MintMode signs as the configured minter and issues tokens in a single shot,
// then exits. The signing key must already hold the minter role.
func (a *App) MintMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mint mode")

	signer, err := crypto.NewSigner(a.cfg.Mint.PrivateKey)
	if err != nil {
		return fmt.Errorf("mint mode: load key: %w", err)
	}

	cust := custody.New(
		deps.AssetStore,
		deps.TokenStore,
		deps.RoleStore,
		common.HexToAddress(a.cfg.Market.VaultAddress),
		a.logger,
	)

	asset := common.HexToAddress(a.cfg.Mint.Asset)
	recipient := common.HexToAddress(a.cfg.Mint.Recipient)
	if err := cust.Mint(ctx, signer.Address(), asset, recipient, a.cfg.Mint.URI, a.cfg.Mint.TokenID, a.cfg.Mint.Amount); err != nil {
		return fmt.Errorf("mint mode: %w", err)
	}

	a.logger.InfoContext(ctx, "minted",
		slog.String("asset", asset.Hex()),
		slog.Int64("token_id", a.cfg.Mint.TokenID),
		slog.String("recipient", recipient.Hex()),
		slog.Int64("amount", a.cfg.Mint.Amount),
	)
	return nil
}

// runArchiveLoop periodically archives closed listings and auctions older
// than the retention window.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		cutoff := time.Now().UTC().Add(-retention)
		if n, err := deps.Archiver.ArchiveListings(ctx, cutoff); err != nil {
			a.logger.ErrorContext(ctx, "archive listings failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archived listings", slog.Int64("count", n))
		}
		if n, err := deps.Archiver.ArchiveAuctions(ctx, cutoff); err != nil {
			a.logger.ErrorContext(ctx, "archive auctions failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archived auctions", slog.Int64("count", n))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}
