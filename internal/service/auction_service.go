package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/custody"
	"github.com/mintmarket/marketd/internal/domain"
)

const (
	// Fallbacks used when the parameter table has not been seeded yet.
	defaultAuctionDuration = 3 * 24 * time.Hour
	defaultMinBidIncrement = int64(1)

	// bidRateLimit bounds bid submissions per bidder per second.
	bidRateLimit = 10
)

// AuctionService runs the timed-auction state machine. Auction expiry is
// lazy: the stored end time is compared against the call's clock, never a
// background timer. Each accepted bid produces at most one escrow credit,
// refunding the previous highest bidder.
type AuctionService struct {
	auctions domain.AuctionStore
	escrow   domain.EscrowStore
	funds    domain.FundsStore
	custody  *custody.Service
	params   domain.ParamStore
	roles    domain.RoleStore
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuctionService creates an AuctionService with all required dependencies.
func NewAuctionService(
	auctions domain.AuctionStore,
	escrow domain.EscrowStore,
	funds domain.FundsStore,
	cust *custody.Service,
	params domain.ParamStore,
	roles domain.RoleStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		escrow:   escrow,
		funds:    funds,
		custody:  cust,
		params:   params,
		roles:    roles,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Useful for deadline tests.
func (s *AuctionService) WithClock(now func() time.Time) *AuctionService {
	s.now = now
	return s
}

// Create pulls amount units into custody and opens an auction ending after
// the configured auction duration.
func (s *AuctionService) Create(ctx context.Context, seller, asset common.Address, tokenID, minPrice, amount int64) (domain.Auction, error) {
	if minPrice <= 0 {
		return domain.Auction{}, domain.ErrInvalidAmount
	}

	duration, err := s.AuctionTime(ctx)
	if err != nil {
		return domain.Auction{}, err
	}

	if err := s.custody.Pull(ctx, asset, tokenID, seller, amount); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: create: %w", err)
	}

	a := domain.Auction{
		Seller:   seller,
		Asset:    asset,
		TokenID:  tokenID,
		Amount:   amount,
		MinPrice: minPrice,
		EndTime:  s.now().UTC().Add(duration),
		Active:   true,
	}
	id, err := s.auctions.Create(ctx, a)
	if err != nil {
		if relErr := s.custody.Release(ctx, asset, tokenID, seller, amount); relErr != nil {
			s.logger.ErrorContext(ctx, "auction_service: custody release after failed create",
				slog.String("error", relErr.Error()),
			)
		}
		return domain.Auction{}, fmt.Errorf("auction_service: create auction: %w", err)
	}
	a.ID = id

	s.logAudit(ctx, "auction_created", map[string]any{
		"auction_id": id,
		"seller":     seller.Hex(),
		"asset":      asset.Hex(),
		"token_id":   tokenID,
		"min_price":  minPrice,
		"amount":     amount,
		"end_time":   a.EndTime,
	})
	s.publish(ctx, map[string]any{
		"event":      "auction_created",
		"auction_id": id,
		"seller":     seller.Hex(),
	})

	s.logger.InfoContext(ctx, "auction_service: auction opened",
		slog.Int64("auction_id", id),
		slog.String("seller", seller.Hex()),
		slog.Time("end_time", a.EndTime),
	)
	return a, nil
}

// MakeBid accepts a bid that meets the minimum price (first bid) or exceeds
// the current highest bid by at least the configured increment. The previous
// highest bidder's payment is credited to its escrow balance before the new
// bid is recorded; no direct transfer ever reaches an outbid party.
func (s *AuctionService) MakeBid(ctx context.Context, bidder common.Address, auctionID, payment int64) (domain.Auction, error) {
	allowed, err := s.limiter.Allow(ctx, "bids:"+bidder.Hex(), bidRateLimit, time.Second)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Auction{}, domain.ErrRateLimited
	}

	unlock, err := s.locks.Acquire(ctx, auctionLockKey(auctionID), lockTTL)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: bid on %d: %w", auctionID, err)
	}
	defer unlock()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: bid on %d: %w", auctionID, err)
	}
	if !a.Active {
		return domain.Auction{}, domain.ErrNotActive
	}
	if a.Ended(s.now().UTC()) {
		return domain.Auction{}, domain.ErrAuctionEnded
	}

	increment, err := s.BidForEnding(ctx)
	if err != nil {
		return domain.Auction{}, err
	}
	floor := a.MinPrice
	if a.HasBid() {
		floor = a.HighestBid + increment
	}
	if payment < floor {
		return domain.Auction{}, domain.ErrInsufficientPayment
	}

	if err := s.funds.Debit(ctx, bidder, payment); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: debit bidder on %d: %w", auctionID, err)
	}

	// Refund the outbid party into escrow before recording the new bid.
	if a.HasBid() {
		if err := s.escrow.Credit(ctx, a.HighestBidder, a.HighestBid); err != nil {
			return domain.Auction{}, fmt.Errorf("auction_service: refund outbid on %d: %w", auctionID, err)
		}
	}
	if err := s.auctions.SetBid(ctx, auctionID, bidder, payment); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: record bid on %d: %w", auctionID, err)
	}

	prev := a.HighestBidder
	a.HighestBidder = bidder
	a.HighestBid = payment

	s.logAudit(ctx, "bid_placed", map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder.Hex(),
		"bid":        payment,
	})
	evt := map[string]any{
		"event":      "bid_placed",
		"auction_id": auctionID,
		"bidder":     bidder.Hex(),
		"bid":        payment,
	}
	if prev != (common.Address{}) {
		evt["outbid"] = prev.Hex()
	}
	s.publish(ctx, evt)

	s.logger.InfoContext(ctx, "auction_service: bid accepted",
		slog.Int64("auction_id", auctionID),
		slog.String("bidder", bidder.Hex()),
		slog.Int64("bid", payment),
	)
	return a, nil
}

// Cancel ends an auction before any bid has been placed, returning custody to
// the seller. Once a bid exists the auction can only finish.
func (s *AuctionService) Cancel(ctx context.Context, caller common.Address, auctionID int64) error {
	unlock, err := s.locks.Acquire(ctx, auctionLockKey(auctionID), lockTTL)
	if err != nil {
		return fmt.Errorf("auction_service: cancel %d: %w", auctionID, err)
	}
	defer unlock()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("auction_service: cancel %d: %w", auctionID, err)
	}
	if caller != a.Seller {
		return domain.ErrUnauthorized
	}
	if !a.Active {
		return domain.ErrNotActive
	}
	if a.HasBid() {
		return domain.ErrBidAlreadyPlaced
	}

	if err := s.auctions.Close(ctx, auctionID); err != nil {
		return fmt.Errorf("auction_service: close %d: %w", auctionID, err)
	}
	if err := s.custody.Release(ctx, a.Asset, a.TokenID, a.Seller, a.Amount); err != nil {
		return fmt.Errorf("auction_service: release custody for %d: %w", auctionID, err)
	}

	s.logAudit(ctx, "auction_cancelled", map[string]any{"auction_id": auctionID})
	s.publish(ctx, map[string]any{
		"event":      "auction_cancelled",
		"auction_id": auctionID,
	})

	s.logger.InfoContext(ctx, "auction_service: auction cancelled",
		slog.Int64("auction_id", auctionID),
	)
	return nil
}

// Finish settles an auction whose deadline has passed. With a bid the token
// goes to the highest bidder and the bid amount to the seller's escrow
// balance; without one the token returns to the seller. Only the seller or
// the highest bidder may settle, and only once.
func (s *AuctionService) Finish(ctx context.Context, caller common.Address, auctionID int64) (domain.Auction, error) {
	unlock, err := s.locks.Acquire(ctx, auctionLockKey(auctionID), lockTTL)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: finish %d: %w", auctionID, err)
	}
	defer unlock()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: finish %d: %w", auctionID, err)
	}
	if !a.Active {
		return domain.Auction{}, domain.ErrNotActive
	}
	if !a.Ended(s.now().UTC()) {
		return domain.Auction{}, domain.ErrAuctionNotEnded
	}
	if caller != a.Seller && caller != a.HighestBidder {
		return domain.Auction{}, domain.ErrUnauthorized
	}

	if err := s.auctions.Close(ctx, auctionID); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: close %d: %w", auctionID, err)
	}

	if a.HasBid() {
		if err := s.escrow.Credit(ctx, a.Seller, a.HighestBid); err != nil {
			return domain.Auction{}, fmt.Errorf("auction_service: credit seller for %d: %w", auctionID, err)
		}
		if err := s.custody.Release(ctx, a.Asset, a.TokenID, a.HighestBidder, a.Amount); err != nil {
			return domain.Auction{}, fmt.Errorf("auction_service: release to winner for %d: %w", auctionID, err)
		}
	} else {
		if err := s.custody.Release(ctx, a.Asset, a.TokenID, a.Seller, a.Amount); err != nil {
			return domain.Auction{}, fmt.Errorf("auction_service: return custody for %d: %w", auctionID, err)
		}
	}
	a.Active = false

	s.logAudit(ctx, "auction_finished", map[string]any{
		"auction_id": auctionID,
		"winner":     a.HighestBidder.Hex(),
		"bid":        a.HighestBid,
	})
	s.publish(ctx, map[string]any{
		"event":      "auction_finished",
		"auction_id": auctionID,
		"winner":     a.HighestBidder.Hex(),
		"bid":        a.HighestBid,
	})

	s.logger.InfoContext(ctx, "auction_service: auction finished",
		slog.Int64("auction_id", auctionID),
		slog.String("winner", a.HighestBidder.Hex()),
		slog.Int64("bid", a.HighestBid),
	)
	return a, nil
}

// Get retrieves a single auction by id, including its current highest bid.
func (s *AuctionService) Get(ctx context.Context, id int64) (domain.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: get %d: %w", id, err)
	}
	return a, nil
}

// ListActive returns active auctions with pagination.
func (s *AuctionService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	as, err := s.auctions.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list active: %w", err)
	}
	return as, nil
}

// AuctionTime returns the configured auction duration applied to new
// auctions.
func (s *AuctionService) AuctionTime(ctx context.Context) (time.Duration, error) {
	sec, err := s.params.GetInt64(ctx, domain.ParamAuctionDurationSec)
	if errors.Is(err, domain.ErrNotFound) {
		return defaultAuctionDuration, nil
	}
	if err != nil {
		return 0, fmt.Errorf("auction_service: read auction duration: %w", err)
	}
	return time.Duration(sec) * time.Second, nil
}

// BidForEnding returns the configured minimum increment a new bid must add
// over the current highest bid.
func (s *AuctionService) BidForEnding(ctx context.Context) (int64, error) {
	v, err := s.params.GetInt64(ctx, domain.ParamMinBidIncrement)
	if errors.Is(err, domain.ErrNotFound) {
		return defaultMinBidIncrement, nil
	}
	if err != nil {
		return 0, fmt.Errorf("auction_service: read min bid increment: %w", err)
	}
	return v, nil
}

// SetAuctionTime updates the auction duration. Admin only.
func (s *AuctionService) SetAuctionTime(ctx context.Context, caller common.Address, d time.Duration) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if d <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.params.SetInt64(ctx, domain.ParamAuctionDurationSec, int64(d/time.Second)); err != nil {
		return fmt.Errorf("auction_service: set auction duration: %w", err)
	}
	s.logAudit(ctx, "auction_time_set", map[string]any{"duration_sec": int64(d / time.Second)})
	return nil
}

// SetMinBid updates the minimum bid increment. Admin only.
func (s *AuctionService) SetMinBid(ctx context.Context, caller common.Address, v int64) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if v <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.params.SetInt64(ctx, domain.ParamMinBidIncrement, v); err != nil {
		return fmt.Errorf("auction_service: set min bid increment: %w", err)
	}
	s.logAudit(ctx, "min_bid_set", map[string]any{"min_bid_increment": v})
	return nil
}

func (s *AuctionService) requireAdmin(ctx context.Context, caller common.Address) error {
	ok, err := s.roles.Has(ctx, domain.RoleAdmin, caller)
	if err != nil {
		return fmt.Errorf("auction_service: admin role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *AuctionService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuctionService) publish(ctx context.Context, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelAuctions, data); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "auction_service: publish event failed",
			slog.String("error", err.Error()),
		)
	}
}

func auctionLockKey(id int64) string {
	return fmt.Sprintf("auction:%d", id)
}
