package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
)

func TestAdminRoleLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	target := common.HexToAddress("0x0000000000000000000000000000000000009999")

	held, err := e.admin.HasRole(ctx, domain.RoleMinter, target)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, e.admin.GrantRole(ctx, admin, domain.RoleMinter, target))
	held, err = e.admin.HasRole(ctx, domain.RoleMinter, target)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, e.admin.RevokeRole(ctx, admin, domain.RoleMinter, target))
	held, err = e.admin.HasRole(ctx, domain.RoleMinter, target)
	require.NoError(t, err)
	assert.False(t, held)

	t.Run("non-admin refused", func(t *testing.T) {
		err := e.admin.GrantRole(ctx, seller, domain.RoleMinter, target)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		err = e.admin.RevokeRole(ctx, seller, domain.RoleMinter, target)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown role refused", func(t *testing.T) {
		err := e.admin.GrantRole(ctx, admin, "superuser", target)
		assert.ErrorIs(t, err, domain.ErrUnknownRole)
		_, err = e.admin.HasRole(ctx, "superuser", target)
		assert.ErrorIs(t, err, domain.ErrUnknownRole)
	})
}

func TestAdminRegisterAsset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	addr := common.HexToAddress("0x0000000000000000000000000000000000008888")

	t.Run("asset without supported interface refused", func(t *testing.T) {
		err := e.admin.RegisterAsset(ctx, admin, domain.Asset{Address: addr, Symbol: "BAD"})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("non-admin refused", func(t *testing.T) {
		err := e.admin.RegisterAsset(ctx, seller, domain.Asset{
			Address:    addr,
			Interfaces: []domain.InterfaceID{domain.InterfaceMultiAsset},
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	require.NoError(t, e.admin.RegisterAsset(ctx, admin, domain.Asset{
		Address:    addr,
		Symbol:     "NEW",
		Interfaces: []domain.InterfaceID{domain.InterfaceMultiAsset},
	}))

	assets, err := e.admin.ListAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 3) // two fixtures plus the new one
}

func TestAdminBootstrap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fresh := common.HexToAddress("0x0000000000000000000000000000000000007777")
	require.NoError(t, e.admin.Bootstrap(ctx, fresh, 3600, 5))

	held, err := e.admin.HasRole(ctx, domain.RoleAdmin, fresh)
	require.NoError(t, err)
	assert.True(t, held)

	d, err := e.auctions.AuctionTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), int64(d.Seconds()))

	// Seeding is idempotent: a second bootstrap keeps operator overrides.
	require.NoError(t, e.auctions.SetMinBid(ctx, fresh, 9))
	require.NoError(t, e.admin.Bootstrap(ctx, fresh, 3600, 5))
	inc, err := e.auctions.BidForEnding(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), inc)
}

func TestAdminAuditLog(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	target := common.HexToAddress("0x0000000000000000000000000000000000006666")
	require.NoError(t, e.admin.GrantRole(ctx, admin, domain.RoleMinter, target))

	_, err := e.admin.AuditLog(ctx, seller, domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	entries, err := e.admin.AuditLog(ctx, admin, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "role_granted", entries[len(entries)-1].Event)
}
