package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/custody"
	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/store/memory"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	minter = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	bidder = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	rival  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	vault  = common.HexToAddress("0x0000000000000000000000000000000000000001")

	uniqueAsset = common.HexToAddress("0x00000000000000000000000000000000000aaaa1")
	multiAsset  = common.HexToAddress("0x00000000000000000000000000000000000aaaa2")
)

// recordingGateway implements domain.PaymentGateway for withdraw tests.
type recordingGateway struct {
	payouts map[common.Address]int64
	fail    bool
}

func (g *recordingGateway) Payout(_ context.Context, to common.Address, amount int64) error {
	if g.fail {
		return errors.New("gateway unavailable")
	}
	if g.payouts == nil {
		g.payouts = make(map[common.Address]int64)
	}
	g.payouts[to] += amount
	return nil
}

// env bundles memory-backed services for a test.
type env struct {
	stores   *memory.Stores
	custody  *custody.Service
	gateway  *recordingGateway
	listings *ListingService
	auctions *AuctionService
	escrow   *EscrowService
	admin    *AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := memory.New()
	locks := memory.NewLockManager()
	limiter := memory.NewRateLimiter()
	bus := memory.NewSignalBus()

	cust := custody.New(stores.Assets(), stores.Tokens(), stores.Roles(), vault, logger)
	gateway := &recordingGateway{}

	e := &env{
		stores:  stores,
		custody: cust,
		gateway: gateway,
		listings: NewListingService(
			stores.Listings(), stores.Escrow(), stores.Funds(), cust,
			locks, bus, stores.Audit(), logger,
		),
		auctions: NewAuctionService(
			stores.Auctions(), stores.Escrow(), stores.Funds(), cust,
			stores.Params(), stores.Roles(), locks, limiter, bus,
			stores.Audit(), logger,
		),
		escrow: NewEscrowService(
			stores.Escrow(), stores.Funds(), gateway,
			locks, bus, stores.Audit(), logger,
		),
		admin: NewAdminService(
			stores.Roles(), stores.Assets(), stores.Params(), stores.Audit(), logger,
		),
	}

	ctx := context.Background()
	require.NoError(t, stores.Roles().Grant(ctx, domain.RoleAdmin, admin))
	require.NoError(t, stores.Roles().Grant(ctx, domain.RoleMinter, minter))
	require.NoError(t, stores.Assets().Register(ctx, domain.Asset{
		Address:    uniqueAsset,
		Symbol:     "UNQ",
		Interfaces: []domain.InterfaceID{domain.InterfaceUniqueAsset},
	}))
	require.NoError(t, stores.Assets().Register(ctx, domain.Asset{
		Address:    multiAsset,
		Symbol:     "MLT",
		Interfaces: []domain.InterfaceID{domain.InterfaceMultiAsset},
	}))
	return e
}

func (e *env) mintUnique(t *testing.T, tokenID int64, to common.Address) {
	t.Helper()
	require.NoError(t, e.custody.Mint(context.Background(), minter, uniqueAsset, to, "ipfs://token", tokenID, 1))
}

func (e *env) mintMulti(t *testing.T, tokenID, amount int64, to common.Address) {
	t.Helper()
	require.NoError(t, e.custody.Mint(context.Background(), minter, multiAsset, to, "", tokenID, amount))
}

func (e *env) deposit(t *testing.T, principal common.Address, amount int64) {
	t.Helper()
	require.NoError(t, e.stores.Funds().Deposit(context.Background(), principal, amount))
}

func (e *env) escrowBalance(t *testing.T, principal common.Address) int64 {
	t.Helper()
	bal, err := e.stores.Escrow().Balance(context.Background(), principal)
	require.NoError(t, err)
	return bal
}

func (e *env) fundsBalance(t *testing.T, principal common.Address) int64 {
	t.Helper()
	bal, err := e.stores.Funds().Balance(context.Background(), principal)
	require.NoError(t, err)
	return bal
}

func (e *env) holdings(t *testing.T, asset common.Address, tokenID int64, owner common.Address) int64 {
	t.Helper()
	bal, err := e.custody.BalanceOf(context.Background(), asset, owner, tokenID)
	require.NoError(t, err)
	return bal
}
