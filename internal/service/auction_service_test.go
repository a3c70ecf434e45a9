package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
)

func TestAuctionBidWarAndSettlement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.auctions.WithClock(func() time.Time { return now })

	e.mintUnique(t, 7, seller)
	e.deposit(t, buyer, 100)
	e.deposit(t, bidder, 100)
	e.deposit(t, rival, 100)

	a, err := e.auctions.Create(ctx, seller, uniqueAsset, 7, 20, 1)
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, int64(1), e.holdings(t, uniqueAsset, 7, vault))

	// First bid must meet the minimum price.
	_, err = e.auctions.MakeBid(ctx, buyer, a.ID, 19)
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	a, err = e.auctions.MakeBid(ctx, buyer, a.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, buyer, a.HighestBidder)
	assert.Equal(t, int64(20), a.HighestBid)
	assert.Equal(t, int64(80), e.fundsBalance(t, buyer))

	// Each outbid party is refunded into escrow, never paid directly.
	a, err = e.auctions.MakeBid(ctx, bidder, a.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(20), e.escrowBalance(t, buyer))

	a, err = e.auctions.MakeBid(ctx, buyer, a.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(30), e.escrowBalance(t, bidder))
	assert.Equal(t, int64(40), e.fundsBalance(t, buyer))

	a, err = e.auctions.MakeBid(ctx, rival, a.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(60), e.escrowBalance(t, buyer))
	assert.Equal(t, rival, a.HighestBidder)

	// A matching bid does not clear the increment threshold.
	_, err = e.auctions.MakeBid(ctx, bidder, a.ID, 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	// Settlement before the deadline is refused.
	_, err = e.auctions.Finish(ctx, seller, a.ID)
	assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	// A bid-carrying auction cannot be cancelled.
	err = e.auctions.Cancel(ctx, seller, a.ID)
	assert.ErrorIs(t, err, domain.ErrBidAlreadyPlaced)

	now = now.Add(4 * 24 * time.Hour)

	// Bids after the deadline are refused even while the row is still active.
	_, err = e.auctions.MakeBid(ctx, bidder, a.ID, 100)
	assert.ErrorIs(t, err, domain.ErrAuctionEnded)

	// Only the seller or the winner may settle.
	_, err = e.auctions.Finish(ctx, bidder, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	settled, err := e.auctions.Finish(ctx, rival, a.ID)
	require.NoError(t, err)
	assert.False(t, settled.Active)
	assert.Equal(t, int64(1), e.holdings(t, uniqueAsset, 7, rival))
	assert.Equal(t, int64(50), e.escrowBalance(t, seller))

	// Settlement happens exactly once.
	_, err = e.auctions.Finish(ctx, seller, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestAuctionCancelWithoutBids(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintMulti(t, 5, 10, seller)

	a, err := e.auctions.Create(ctx, seller, multiAsset, 5, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), e.holdings(t, multiAsset, 5, seller))

	err = e.auctions.Cancel(ctx, buyer, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, e.auctions.Cancel(ctx, seller, a.ID))
	assert.Equal(t, int64(10), e.holdings(t, multiAsset, 5, seller))

	err = e.auctions.Cancel(ctx, seller, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestAuctionFinishWithoutBidsReturnsCustody(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.auctions.WithClock(func() time.Time { return now })

	e.mintUnique(t, 3, seller)
	a, err := e.auctions.Create(ctx, seller, uniqueAsset, 3, 10, 1)
	require.NoError(t, err)

	now = now.Add(4 * 24 * time.Hour)

	settled, err := e.auctions.Finish(ctx, seller, a.ID)
	require.NoError(t, err)
	assert.False(t, settled.Active)
	assert.False(t, settled.HasBid())
	assert.Equal(t, int64(1), e.holdings(t, uniqueAsset, 3, seller))
}

func TestAuctionParams(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("defaults before seeding", func(t *testing.T) {
		d, err := e.auctions.AuctionTime(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3*24*time.Hour, d)

		inc, err := e.auctions.BidForEnding(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inc)
	})

	t.Run("admin updates", func(t *testing.T) {
		require.NoError(t, e.auctions.SetAuctionTime(ctx, admin, time.Hour))
		require.NoError(t, e.auctions.SetMinBid(ctx, admin, 5))

		d, err := e.auctions.AuctionTime(ctx)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, d)

		inc, err := e.auctions.BidForEnding(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), inc)
	})

	t.Run("non-admin refused", func(t *testing.T) {
		err := e.auctions.SetAuctionTime(ctx, seller, time.Hour)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		err = e.auctions.SetMinBid(ctx, seller, 5)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("non-positive values refused", func(t *testing.T) {
		err := e.auctions.SetAuctionTime(ctx, admin, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		err = e.auctions.SetMinBid(ctx, admin, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestAuctionMinBidIncrementApplied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.auctions.SetMinBid(ctx, admin, 10))

	e.mintUnique(t, 7, seller)
	e.deposit(t, buyer, 100)
	e.deposit(t, bidder, 100)

	a, err := e.auctions.Create(ctx, seller, uniqueAsset, 7, 20, 1)
	require.NoError(t, err)

	_, err = e.auctions.MakeBid(ctx, buyer, a.ID, 20)
	require.NoError(t, err)

	// 29 < 20+10; the bid and the bidder's funds are untouched.
	_, err = e.auctions.MakeBid(ctx, bidder, a.ID, 29)
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Equal(t, int64(100), e.fundsBalance(t, bidder))

	_, err = e.auctions.MakeBid(ctx, bidder, a.ID, 30)
	require.NoError(t, err)
}
