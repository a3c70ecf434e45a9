package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
)

func TestListingUniqueSale(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintUnique(t, 7, seller)
	e.deposit(t, buyer, 100)

	l, err := e.listings.List(ctx, seller, uniqueAsset, 7, 100, 1)
	require.NoError(t, err)
	assert.True(t, l.Active)
	assert.Equal(t, int64(1), l.Remaining)

	// Listed token sits in the vault, not with the seller.
	assert.Equal(t, int64(0), e.holdings(t, uniqueAsset, 7, seller))
	assert.Equal(t, int64(1), e.holdings(t, uniqueAsset, 7, vault))

	updated, err := e.listings.Buy(ctx, buyer, l.ID, 1, 100)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(0), updated.Remaining)

	assert.Equal(t, int64(1), e.holdings(t, uniqueAsset, 7, buyer))
	assert.Equal(t, int64(100), e.escrowBalance(t, seller))
	assert.Equal(t, int64(0), e.fundsBalance(t, buyer))

	// Sold out: a second purchase attempt observes an inactive listing.
	_, err = e.listings.Buy(ctx, buyer, l.ID, 1, 100)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestListingMultiPartialBuyAndCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintMulti(t, 5, 10, seller)
	e.deposit(t, buyer, 1000)

	l, err := e.listings.List(ctx, seller, multiAsset, 5, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), e.holdings(t, multiAsset, 5, seller))
	assert.Equal(t, int64(4), e.holdings(t, multiAsset, 5, vault))

	updated, err := e.listings.Buy(ctx, buyer, l.ID, 3, 30)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, int64(1), updated.Remaining)
	assert.Equal(t, int64(3), e.holdings(t, multiAsset, 5, buyer))
	assert.Equal(t, int64(30), e.escrowBalance(t, seller))

	updated, err = e.listings.Cancel(ctx, seller, l.ID, 1)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(0), updated.Remaining)
	assert.Equal(t, int64(7), e.holdings(t, multiAsset, 5, seller))
	assert.Equal(t, int64(0), e.holdings(t, multiAsset, 5, vault))
}

func TestListingStagedCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintMulti(t, 5, 4, seller)

	l, err := e.listings.List(ctx, seller, multiAsset, 5, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.holdings(t, multiAsset, 5, seller))

	updated, err := e.listings.Cancel(ctx, seller, l.ID, 2)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, int64(1), updated.Remaining)
	assert.Equal(t, int64(3), e.holdings(t, multiAsset, 5, seller))

	updated, err = e.listings.Cancel(ctx, seller, l.ID, 1)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(4), e.holdings(t, multiAsset, 5, seller))

	_, err = e.listings.Cancel(ctx, seller, l.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestListingPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintMulti(t, 5, 10, seller)
	e.deposit(t, buyer, 1000)

	l, err := e.listings.List(ctx, seller, multiAsset, 5, 10, 4)
	require.NoError(t, err)

	t.Run("zero price rejected", func(t *testing.T) {
		_, err := e.listings.List(ctx, seller, multiAsset, 5, 0, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("listing more than held rejected", func(t *testing.T) {
		_, err := e.listings.List(ctx, seller, multiAsset, 5, 10, 100)
		assert.ErrorIs(t, err, domain.ErrInsufficientCustody)
	})

	t.Run("unique amount other than one rejected", func(t *testing.T) {
		e.mintUnique(t, 9, seller)
		_, err := e.listings.List(ctx, seller, uniqueAsset, 9, 10, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("seller cannot buy own listing", func(t *testing.T) {
		e.deposit(t, seller, 100)
		_, err := e.listings.Buy(ctx, seller, l.ID, 1, 10)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("declared payment below price rejected", func(t *testing.T) {
		_, err := e.listings.Buy(ctx, buyer, l.ID, 2, 19)
		assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	})

	t.Run("buying more than remaining rejected", func(t *testing.T) {
		_, err := e.listings.Buy(ctx, buyer, l.ID, 5, 50)
		assert.ErrorIs(t, err, domain.ErrInsufficientCustody)
	})

	t.Run("insufficient deposit rejected", func(t *testing.T) {
		_, err := e.listings.Buy(ctx, rival, l.ID, 1, 10)
		assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	})

	t.Run("only seller may cancel", func(t *testing.T) {
		_, err := e.listings.Cancel(ctx, buyer, l.ID, 1)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := e.listings.Buy(ctx, buyer, 9999, 1, 10)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListingGetAndListActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mintMulti(t, 5, 10, seller)
	for i := 0; i < 3; i++ {
		_, err := e.listings.List(ctx, seller, multiAsset, 5, 10, 2)
		require.NoError(t, err)
	}

	got, err := e.listings.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)

	active, err := e.listings.ListActive(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
