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

// lockTTL bounds how long a per-entity mutation lock may outlive a crashed
// holder.
const lockTTL = 10 * time.Second

// ListingService runs the fixed-price sale state machine. Every mutation is
// serialized behind a per-listing lock and ordered checks, then bookkeeping,
// then custody movement, so a failed precondition never leaves a partial
// effect.
type ListingService struct {
	listings domain.ListingStore
	escrow   domain.EscrowStore
	funds    domain.FundsStore
	custody  *custody.Service
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	cache    domain.ListingCache
	logger   *slog.Logger
}

// NewListingService creates a ListingService with all required dependencies.
func NewListingService(
	listings domain.ListingStore,
	escrow domain.EscrowStore,
	funds domain.FundsStore,
	cust *custody.Service,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		listings: listings,
		escrow:   escrow,
		funds:    funds,
		custody:  cust,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		logger:   logger,
	}
}

// WithCache attaches a read-through cache for Get. Mutations invalidate the
// cached entry.
func (s *ListingService) WithCache(cache domain.ListingCache) *ListingService {
	s.cache = cache
	return s
}

// List pulls amount units of the token into marketplace custody and creates
// an active listing at the given unit price. The custody layer rejects a zero
// amount and any amount other than 1 for a unique-asset ledger.
func (s *ListingService) List(ctx context.Context, seller, asset common.Address, tokenID, pricePerUnit, amount int64) (domain.Listing, error) {
	if pricePerUnit <= 0 {
		return domain.Listing{}, domain.ErrInvalidAmount
	}

	if err := s.custody.Pull(ctx, asset, tokenID, seller, amount); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: list: %w", err)
	}

	l := domain.Listing{
		Seller:       seller,
		Asset:        asset,
		TokenID:      tokenID,
		PricePerUnit: pricePerUnit,
		Remaining:    amount,
		Active:       true,
	}
	id, err := s.listings.Create(ctx, l)
	if err != nil {
		// Hand the tokens back; the listing row was never created.
		if relErr := s.custody.Release(ctx, asset, tokenID, seller, amount); relErr != nil {
			s.logger.ErrorContext(ctx, "listing_service: custody release after failed create",
				slog.String("error", relErr.Error()),
			)
		}
		return domain.Listing{}, fmt.Errorf("listing_service: create listing: %w", err)
	}
	l.ID = id

	s.logAudit(ctx, "listing_created", map[string]any{
		"listing_id": id,
		"seller":     seller.Hex(),
		"asset":      asset.Hex(),
		"token_id":   tokenID,
		"price":      pricePerUnit,
		"amount":     amount,
	})
	s.publish(ctx, map[string]any{
		"event":      "listing_created",
		"listing_id": id,
		"seller":     seller.Hex(),
	})

	s.logger.InfoContext(ctx, "listing_service: listed",
		slog.Int64("listing_id", id),
		slog.String("seller", seller.Hex()),
		slog.Int64("amount", amount),
	)
	return l, nil
}

// Cancel returns amount units from custody to the seller and decrements the
// listing, deactivating it when nothing remains. Only the seller may cancel.
func (s *ListingService) Cancel(ctx context.Context, caller common.Address, listingID, amount int64) (domain.Listing, error) {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(listingID), lockTTL)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: cancel %d: %w", listingID, err)
	}
	defer unlock()

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: cancel %d: %w", listingID, err)
	}
	if caller != l.Seller {
		return domain.Listing{}, domain.ErrUnauthorized
	}
	if !l.Active {
		return domain.Listing{}, domain.ErrNotActive
	}
	if amount <= 0 {
		return domain.Listing{}, domain.ErrInvalidAmount
	}
	if amount > l.Remaining {
		return domain.Listing{}, domain.ErrInsufficientCustody
	}

	updated, err := s.listings.Reduce(ctx, listingID, amount)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: reduce listing %d: %w", listingID, err)
	}
	s.invalidate(ctx, listingID)
	if err := s.custody.Release(ctx, l.Asset, l.TokenID, l.Seller, amount); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: release custody for listing %d: %w", listingID, err)
	}

	s.logAudit(ctx, "listing_cancelled", map[string]any{
		"listing_id": listingID,
		"amount":     amount,
		"remaining":  updated.Remaining,
	})
	s.publish(ctx, map[string]any{
		"event":      "listing_cancelled",
		"listing_id": listingID,
		"remaining":  updated.Remaining,
	})

	s.logger.InfoContext(ctx, "listing_service: cancelled",
		slog.Int64("listing_id", listingID),
		slog.Int64("amount", amount),
		slog.Int64("remaining", updated.Remaining),
	)
	return updated, nil
}

// Buy debits the buyer's attached payment, credits it to the seller's escrow
// balance, and releases amount units of custody to the buyer. The seller
// cannot buy from their own listing.
func (s *ListingService) Buy(ctx context.Context, buyer common.Address, listingID, amount, payment int64) (domain.Listing, error) {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(listingID), lockTTL)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: buy %d: %w", listingID, err)
	}
	defer unlock()

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: buy %d: %w", listingID, err)
	}
	if !l.Active {
		return domain.Listing{}, domain.ErrNotActive
	}
	if buyer == l.Seller {
		return domain.Listing{}, domain.ErrUnauthorized
	}
	if amount <= 0 {
		return domain.Listing{}, domain.ErrInvalidAmount
	}
	if amount > l.Remaining {
		return domain.Listing{}, domain.ErrInsufficientCustody
	}
	if payment < l.PricePerUnit*amount {
		return domain.Listing{}, domain.ErrInsufficientPayment
	}

	if err := s.funds.Debit(ctx, buyer, payment); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: debit buyer for listing %d: %w", listingID, err)
	}

	updated, err := s.listings.Reduce(ctx, listingID, amount)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: reduce listing %d: %w", listingID, err)
	}
	s.invalidate(ctx, listingID)
	if err := s.escrow.Credit(ctx, l.Seller, payment); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: credit seller escrow for listing %d: %w", listingID, err)
	}
	if err := s.custody.Release(ctx, l.Asset, l.TokenID, buyer, amount); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: release custody for listing %d: %w", listingID, err)
	}

	s.logAudit(ctx, "listing_sold", map[string]any{
		"listing_id": listingID,
		"buyer":      buyer.Hex(),
		"amount":     amount,
		"payment":    payment,
		"remaining":  updated.Remaining,
	})
	s.publish(ctx, map[string]any{
		"event":      "listing_sold",
		"listing_id": listingID,
		"buyer":      buyer.Hex(),
		"amount":     amount,
		"remaining":  updated.Remaining,
	})

	s.logger.InfoContext(ctx, "listing_service: sold",
		slog.Int64("listing_id", listingID),
		slog.String("buyer", buyer.Hex()),
		slog.Int64("amount", amount),
		slog.Int64("payment", payment),
	)
	return updated, nil
}

// Get retrieves a single listing by id, consulting the cache first when one
// is attached.
func (s *ListingService) Get(ctx context.Context, id int64) (domain.Listing, error) {
	if s.cache != nil {
		if l, err := s.cache.Get(ctx, id); err == nil {
			return l, nil
		}
	}

	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: get %d: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, l); err != nil {
			s.logger.WarnContext(ctx, "listing_service: cache set failed",
				slog.Int64("listing_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return l, nil
}

// ListActive returns active listings with pagination.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	ls, err := s.listings.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list active: %w", err)
	}
	return ls, nil
}

func (s *ListingService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "listing_service: cache invalidate failed",
			slog.Int64("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ListingService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "listing_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ListingService) publish(ctx context.Context, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelListings, data); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "listing_service: publish event failed",
			slog.String("error", err.Error()),
		)
	}
}

func listingLockKey(id int64) string {
	return fmt.Sprintf("listing:%d", id)
}
