package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/server/handler"
	"github.com/mintmarket/marketd/internal/server/middleware"
	"github.com/mintmarket/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	MaxClockSkew time.Duration

	// RateLimiter throttles requests per client IP when set.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingHandler
	Auctions *handler.AuctionHandler
	Escrow   *handler.EscrowHandler
	Admin    *handler.AdminHandler
	Mint     *handler.MintHandler
}

// Server is the HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, identity) and attaches the
// WebSocket hub. Mutating endpoints require signed identity headers; reads
// pass through unauthenticated.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health probes.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)

	// Fixed-price listings.
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("POST /api/listings/{id}/buy", handlers.Listings.BuyListing)
	mux.HandleFunc("POST /api/listings/{id}/cancel", handlers.Listings.CancelListing)

	// Timed auctions.
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", handlers.Auctions.MakeBid)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", handlers.Auctions.CancelAuction)
	mux.HandleFunc("POST /api/auctions/{id}/finish", handlers.Auctions.FinishAuction)

	// Marketplace parameters.
	mux.HandleFunc("GET /api/params", handlers.Auctions.GetParams)
	mux.HandleFunc("PUT /api/params/auction-time", handlers.Auctions.SetAuctionTime)
	mux.HandleFunc("PUT /api/params/min-bid", handlers.Auctions.SetMinBid)

	// Escrow and deposits.
	mux.HandleFunc("POST /api/escrow/withdraw", handlers.Escrow.Withdraw)
	mux.HandleFunc("GET /api/escrow/{address}", handlers.Escrow.EscrowBalance)
	mux.HandleFunc("POST /api/funds/deposit", handlers.Escrow.Deposit)
	mux.HandleFunc("GET /api/funds/{address}", handlers.Escrow.FundsBalance)

	// Roles, asset registry, audit.
	mux.HandleFunc("POST /api/roles", handlers.Admin.GrantRole)
	mux.HandleFunc("DELETE /api/roles", handlers.Admin.RevokeRole)
	mux.HandleFunc("GET /api/roles/{role}/{address}", handlers.Admin.HasRole)
	mux.HandleFunc("POST /api/assets", handlers.Admin.RegisterAsset)
	mux.HandleFunc("GET /api/assets", handlers.Admin.ListAssets)
	mux.HandleFunc("POST /api/audit/query", handlers.Admin.AuditLog)

	// Token issuance and ledger balances.
	mux.HandleFunc("POST /api/mint", handlers.Mint.Mint)
	mux.HandleFunc("GET /api/balances/{asset}/{token}/{address}", handlers.Mint.Balance)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Identity(cfg.MaxClockSkew)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
