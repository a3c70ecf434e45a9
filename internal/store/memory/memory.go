// Package memory implements the domain store interfaces with in-process
// maps. It backs the service-level tests; the conditional-mutation semantics
// match the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/domain"
)

// Stores bundles every in-memory store over one shared mutex so that a
// mutation observed by one store is immediately visible to the others.
type Stores struct {
	mu sync.Mutex

	listings  map[int64]domain.Listing
	nextList  int64
	auctions  map[int64]domain.Auction
	nextAuct  int64
	escrow    map[common.Address]int64
	funds     map[common.Address]int64
	assets    map[common.Address]domain.Asset
	owners    map[tokenKey]ownedToken
	balances  map[balanceKey]int64
	roles     map[roleKey]bool
	params    map[string]int64
	audit     []domain.AuditEntry
	nextAudit int64
}

type tokenKey struct {
	asset   common.Address
	tokenID int64
}

type ownedToken struct {
	owner common.Address
	uri   string
}

type balanceKey struct {
	asset   common.Address
	tokenID int64
	owner   common.Address
}

type roleKey struct {
	role      domain.Role
	principal common.Address
}

// New creates an empty Stores.
func New() *Stores {
	return &Stores{
		listings: make(map[int64]domain.Listing),
		nextList: 1,
		auctions: make(map[int64]domain.Auction),
		nextAuct: 1,
		escrow:   make(map[common.Address]int64),
		funds:    make(map[common.Address]int64),
		assets:   make(map[common.Address]domain.Asset),
		owners:   make(map[tokenKey]ownedToken),
		balances: make(map[balanceKey]int64),
		roles:    make(map[roleKey]bool),
		params:   make(map[string]int64),
	}
}

// Interface views. Each returns the same *Stores under the matching domain
// interface so wiring reads like the postgres constructors.
func (s *Stores) Listings() domain.ListingStore { return (*listingStore)(s) }
func (s *Stores) Auctions() domain.AuctionStore { return (*auctionStore)(s) }
func (s *Stores) Escrow() domain.EscrowStore    { return (*escrowStore)(s) }
func (s *Stores) Funds() domain.FundsStore      { return (*fundsStore)(s) }
func (s *Stores) Assets() domain.AssetStore     { return (*assetStore)(s) }
func (s *Stores) Tokens() domain.TokenStore     { return (*tokenStore)(s) }
func (s *Stores) Roles() domain.RoleStore       { return (*roleStore)(s) }
func (s *Stores) Params() domain.ParamStore     { return (*paramStore)(s) }
func (s *Stores) Audit() domain.AuditStore      { return (*auditStore)(s) }

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

type listingStore Stores

func (s *listingStore) Create(_ context.Context, l domain.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.nextList
	s.nextList++
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.listings[l.ID] = l
	return l.ID, nil
}

func (s *listingStore) GetByID(_ context.Context, id int64) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *listingStore) Reduce(_ context.Context, id int64, amount int64) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	if !l.Active {
		return domain.Listing{}, domain.ErrNotActive
	}
	if amount > l.Remaining {
		return domain.Listing{}, domain.ErrInsufficientCustody
	}

	l.Remaining -= amount
	if l.Remaining == 0 {
		l.Active = false
	}
	l.UpdatedAt = time.Now().UTC()
	s.listings[id] = l
	return l, nil
}

func (s *listingStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Listing
	for _, l := range s.listings {
		if l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

func (s *listingStore) ListClosedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Listing
	for _, l := range s.listings {
		if !l.Active && l.UpdatedAt.Before(cutoff) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Auctions
// ---------------------------------------------------------------------------

type auctionStore Stores

func (s *auctionStore) Create(_ context.Context, a domain.Auction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextAuct
	s.nextAuct++
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.auctions[a.ID] = a
	return a.ID, nil
}

func (s *auctionStore) GetByID(_ context.Context, id int64) (domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *auctionStore) SetBid(_ context.Context, id int64, bidder common.Address, bid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !a.Active {
		return domain.ErrNotActive
	}

	a.HighestBidder = bidder
	a.HighestBid = bid
	a.UpdatedAt = time.Now().UTC()
	s.auctions[id] = a
	return nil
}

func (s *auctionStore) Close(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !a.Active {
		return domain.ErrNotActive
	}

	a.Active = false
	a.UpdatedAt = time.Now().UTC()
	s.auctions[id] = a
	return nil
}

func (s *auctionStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Auction
	for _, a := range s.auctions {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

func (s *auctionStore) ListClosedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Auction
	for _, a := range s.auctions {
		if !a.Active && a.UpdatedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Escrow and funds
// ---------------------------------------------------------------------------

type escrowStore Stores

func (s *escrowStore) Credit(_ context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrow[principal] += amount
	return nil
}

func (s *escrowStore) Drain(_ context.Context, principal common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal := s.escrow[principal]
	s.escrow[principal] = 0
	return bal, nil
}

func (s *escrowStore) Balance(_ context.Context, principal common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escrow[principal], nil
}

type fundsStore Stores

func (s *fundsStore) Deposit(_ context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[principal] += amount
	return nil
}

func (s *fundsStore) Debit(_ context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.funds[principal] < amount {
		return domain.ErrInsufficientPayment
	}
	s.funds[principal] -= amount
	return nil
}

func (s *fundsStore) Balance(_ context.Context, principal common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.funds[principal], nil
}

// ---------------------------------------------------------------------------
// Assets and tokens
// ---------------------------------------------------------------------------

type assetStore Stores

func (s *assetStore) Register(_ context.Context, a domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.assets[a.Address] = a
	return nil
}

func (s *assetStore) GetByAddress(_ context.Context, addr common.Address) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[addr]
	if !ok {
		return domain.Asset{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *assetStore) List(_ context.Context) ([]domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Hex() < out[j].Address.Hex() })
	return out, nil
}

type tokenStore Stores

func (s *tokenStore) InsertUnique(_ context.Context, asset common.Address, tokenID int64, owner common.Address, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tokenKey{asset, tokenID}
	if _, exists := s.owners[k]; exists {
		return domain.ErrInvalidAmount
	}
	s.owners[k] = ownedToken{owner: owner, uri: uri}
	return nil
}

func (s *tokenStore) OwnerOf(_ context.Context, asset common.Address, tokenID int64) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.owners[tokenKey{asset, tokenID}]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return t.owner, nil
}

func (s *tokenStore) TransferUnique(_ context.Context, asset common.Address, tokenID int64, from, to common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tokenKey{asset, tokenID}
	t, ok := s.owners[k]
	if !ok {
		return domain.ErrNotFound
	}
	if t.owner != from {
		return domain.ErrInsufficientCustody
	}
	t.owner = to
	s.owners[k] = t
	return nil
}

func (s *tokenStore) AddBalance(_ context.Context, asset common.Address, tokenID int64, owner common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{asset, tokenID, owner}] += amount
	return nil
}

func (s *tokenStore) MoveBalance(_ context.Context, asset common.Address, tokenID int64, from, to common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := balanceKey{asset, tokenID, from}
	if s.balances[fromKey] < amount {
		return domain.ErrInsufficientCustody
	}
	s.balances[fromKey] -= amount
	s.balances[balanceKey{asset, tokenID, to}] += amount
	return nil
}

func (s *tokenStore) BalanceOf(_ context.Context, asset common.Address, tokenID int64, owner common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[balanceKey{asset, tokenID, owner}], nil
}

// ---------------------------------------------------------------------------
// Roles, params, audit
// ---------------------------------------------------------------------------

type roleStore Stores

func (s *roleStore) Grant(_ context.Context, role domain.Role, principal common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[roleKey{role, principal}] = true
	return nil
}

func (s *roleStore) Revoke(_ context.Context, role domain.Role, principal common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleKey{role, principal})
	return nil
}

func (s *roleStore) Has(_ context.Context, role domain.Role, principal common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[roleKey{role, principal}], nil
}

type paramStore Stores

func (s *paramStore) GetInt64(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.params[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return v, nil
}

func (s *paramStore) SetInt64(_ context.Context, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[key] = value
	return nil
}

type auditStore Stores

func (s *auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAudit++
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        s.nextAudit,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *auditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return paginate(out, opts), nil
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && len(in) > opts.Limit {
		in = in[:opts.Limit]
	}
	return in
}
