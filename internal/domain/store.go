package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore persists fixed-price listings. Reduce must be conditional: it
// decrements Remaining by amount and deactivates the listing when Remaining
// reaches zero, but only while the listing is active and holds at least
// amount units, so a failed precondition leaves the row untouched.
type ListingStore interface {
	Create(ctx context.Context, l Listing) (int64, error)
	GetByID(ctx context.Context, id int64) (Listing, error)
	Reduce(ctx context.Context, id int64, amount int64) (Listing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Listing, error)
}

// AuctionStore persists auctions. SetBid and Close only succeed while the
// auction row is still active.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) (int64, error)
	GetByID(ctx context.Context, id int64) (Auction, error)
	SetBid(ctx context.Context, id int64, bidder common.Address, bid int64) error
	Close(ctx context.Context, id int64) error
	ListActive(ctx context.Context, opts ListOpts) ([]Auction, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Auction, error)
}

// EscrowStore holds per-principal withdrawable balances. Drain atomically
// zeroes the balance and returns the prior amount; draining an absent or
// zero balance returns zero without error.
type EscrowStore interface {
	Credit(ctx context.Context, principal common.Address, amount int64) error
	Drain(ctx context.Context, principal common.Address) (int64, error)
	Balance(ctx context.Context, principal common.Address) (int64, error)
}

// FundsStore holds spendable deposits backing value-carrying calls. Debit is
// conditional on the balance covering amount and returns
// ErrInsufficientPayment otherwise.
type FundsStore interface {
	Deposit(ctx context.Context, principal common.Address, amount int64) error
	Debit(ctx context.Context, principal common.Address, amount int64) error
	Balance(ctx context.Context, principal common.Address) (int64, error)
}

// AssetStore persists registered asset ledgers and their advertised
// capability interfaces.
type AssetStore interface {
	Register(ctx context.Context, a Asset) error
	GetByAddress(ctx context.Context, addr common.Address) (Asset, error)
	List(ctx context.Context) ([]Asset, error)
}

// TokenStore persists token ownership for both ledger variants: a unique
// owner-per-token table and a per-(owner, token id) balance table.
// Conditional mutations (TransferUnique, MoveBalance) fail with
// ErrInsufficientCustody when the source does not hold what is being moved.
type TokenStore interface {
	// Unique-asset variant.
	InsertUnique(ctx context.Context, asset common.Address, tokenID int64, owner common.Address, uri string) error
	OwnerOf(ctx context.Context, asset common.Address, tokenID int64) (common.Address, error)
	TransferUnique(ctx context.Context, asset common.Address, tokenID int64, from, to common.Address) error

	// Multi-asset variant.
	AddBalance(ctx context.Context, asset common.Address, tokenID int64, owner common.Address, amount int64) error
	MoveBalance(ctx context.Context, asset common.Address, tokenID int64, from, to common.Address, amount int64) error
	BalanceOf(ctx context.Context, asset common.Address, tokenID int64, owner common.Address) (int64, error)
}

// RoleStore persists capability grants.
type RoleStore interface {
	Grant(ctx context.Context, role Role, principal common.Address) error
	Revoke(ctx context.Context, role Role, principal common.Address) error
	Has(ctx context.Context, role Role, principal common.Address) (bool, error)
}

// ParamStore persists the scalar marketplace configuration values (auction
// duration, minimum bid increment) that survive across calls.
type ParamStore interface {
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
}

// Marketplace parameter keys.
const (
	ParamAuctionDurationSec = "auction_duration_sec"
	ParamMinBidIncrement    = "min_bid_increment"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
