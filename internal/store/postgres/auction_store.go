package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintmarket/marketd/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates an AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionCols = `id, seller, asset, token_id, amount, min_price, end_time,
	highest_bidder, highest_bid, active, created_at, updated_at`

func scanAuction(scanner interface{ Scan(dest ...any) error }) (domain.Auction, error) {
	var a domain.Auction
	var seller, asset, bidder string

	err := scanner.Scan(
		&a.ID, &seller, &asset, &a.TokenID,
		&a.Amount, &a.MinPrice, &a.EndTime,
		&bidder, &a.HighestBid, &a.Active,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}
	a.Seller = common.HexToAddress(seller)
	a.Asset = common.HexToAddress(asset)
	if bidder != "" {
		a.HighestBidder = common.HexToAddress(bidder)
	}
	return a, nil
}

// Create inserts a new auction and returns its assigned id.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) (int64, error) {
	const query = `
		INSERT INTO auctions (seller, asset, token_id, amount, min_price, end_time, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		a.Seller.Hex(), a.Asset.Hex(), a.TokenID,
		a.Amount, a.MinPrice, a.EndTime, a.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create auction: %w", err)
	}
	return id, nil
}

// GetByID retrieves a single auction by id.
func (s *AuctionStore) GetByID(ctx context.Context, id int64) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", id, err)
	}
	return a, nil
}

// SetBid records a new highest bid. Only succeeds while the auction is
// active.
func (s *AuctionStore) SetBid(ctx context.Context, id int64, bidder common.Address, bid int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET highest_bidder = $2, highest_bid = $3, updated_at = NOW()
		 WHERE id = $1 AND active`,
		id, bidder.Hex(), bid)
	if err != nil {
		return fmt.Errorf("postgres: set bid on auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveOrMissing(ctx, id)
	}
	return nil
}

// Close deactivates an auction. Only succeeds while the auction is active.
func (s *AuctionStore) Close(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("postgres: close auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveOrMissing(ctx, id)
	}
	return nil
}

func (s *AuctionStore) inactiveOrMissing(ctx context.Context, id int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check auction %d: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrNotActive
}

// ListActive returns active auctions ordered by id with pagination.
func (s *AuctionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionCols + ` FROM auctions WHERE active ORDER BY id`
	args := []any{}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active auctions: %w", err)
	}
	defer rows.Close()

	return scanAuctionRows(rows)
}

// ListClosedBefore returns inactive auctions last touched before the cutoff,
// oldest first. Used by the archiver.
func (s *AuctionStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionCols+` FROM auctions
		 WHERE NOT active AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed auctions: %w", err)
	}
	defer rows.Close()

	return scanAuctionRows(rows)
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
