package custody

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/store/memory"
)

var (
	minter = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	other  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	vault  = common.HexToAddress("0x0000000000000000000000000000000000000001")

	uniqueAsset = common.HexToAddress("0x00000000000000000000000000000000000aaaa1")
	multiAsset  = common.HexToAddress("0x00000000000000000000000000000000000aaaa2")
	bothAsset   = common.HexToAddress("0x00000000000000000000000000000000000aaaa3")
)

func newService(t *testing.T) (*Service, *memory.Stores) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := memory.New()
	svc := New(stores.Assets(), stores.Tokens(), stores.Roles(), vault, logger)

	ctx := context.Background()
	require.NoError(t, stores.Roles().Grant(ctx, domain.RoleMinter, minter))
	require.NoError(t, stores.Assets().Register(ctx, domain.Asset{
		Address:    uniqueAsset,
		Interfaces: []domain.InterfaceID{domain.InterfaceUniqueAsset},
	}))
	require.NoError(t, stores.Assets().Register(ctx, domain.Asset{
		Address:    multiAsset,
		Interfaces: []domain.InterfaceID{domain.InterfaceMultiAsset},
	}))
	require.NoError(t, stores.Assets().Register(ctx, domain.Asset{
		Address:    bothAsset,
		Interfaces: []domain.InterfaceID{domain.InterfaceUniqueAsset, domain.InterfaceMultiAsset},
	}))
	return svc, stores
}

func TestMintRequiresRole(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.Mint(ctx, holder, uniqueAsset, holder, "", 1, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, svc.Mint(ctx, minter, uniqueAsset, holder, "ipfs://one", 1, 1))
}

func TestUniqueVariantDispatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mint(ctx, minter, uniqueAsset, holder, "", 1, 1))

	t.Run("amount other than one rejected", func(t *testing.T) {
		err := svc.Pull(ctx, uniqueAsset, 1, holder, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		err = svc.Mint(ctx, minter, uniqueAsset, holder, "", 2, 3)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("duplicate token id rejected", func(t *testing.T) {
		err := svc.Mint(ctx, minter, uniqueAsset, other, "", 1, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("pull and release move ownership", func(t *testing.T) {
		require.NoError(t, svc.Pull(ctx, uniqueAsset, 1, holder, 1))
		bal, err := svc.BalanceOf(ctx, uniqueAsset, vault, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), bal)

		require.NoError(t, svc.Release(ctx, uniqueAsset, 1, other, 1))
		bal, err = svc.BalanceOf(ctx, uniqueAsset, other, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), bal)
	})

	t.Run("pull from non-owner rejected", func(t *testing.T) {
		err := svc.Pull(ctx, uniqueAsset, 1, holder, 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientCustody)
	})
}

func TestMultiVariantDispatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mint(ctx, minter, multiAsset, holder, "", 5, 10))

	require.NoError(t, svc.Pull(ctx, multiAsset, 5, holder, 4))
	bal, err := svc.BalanceOf(ctx, multiAsset, holder, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), bal)

	err = svc.Pull(ctx, multiAsset, 5, holder, 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientCustody)

	require.NoError(t, svc.Release(ctx, multiAsset, 5, other, 4))
	bal, err = svc.BalanceOf(ctx, multiAsset, other, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal)
}

func TestVariantResolution(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	t.Run("unregistered asset", func(t *testing.T) {
		err := svc.Pull(ctx, common.HexToAddress("0xdead"), 1, holder, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unique semantics win when both advertised", func(t *testing.T) {
		require.NoError(t, svc.Mint(ctx, minter, bothAsset, holder, "", 1, 1))
		err := svc.Pull(ctx, bothAsset, 1, holder, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}
