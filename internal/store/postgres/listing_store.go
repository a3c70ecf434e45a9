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

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `id, seller, asset, token_id, price_per_unit, remaining, active, created_at, updated_at`

func scanListing(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var seller, asset string

	err := scanner.Scan(
		&l.ID, &seller, &asset, &l.TokenID,
		&l.PricePerUnit, &l.Remaining, &l.Active,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Seller = common.HexToAddress(seller)
	l.Asset = common.HexToAddress(asset)
	return l, nil
}

// Create inserts a new listing and returns its assigned id.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (int64, error) {
	const query = `
		INSERT INTO listings (seller, asset, token_id, price_per_unit, remaining, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		l.Seller.Hex(), l.Asset.Hex(), l.TokenID,
		l.PricePerUnit, l.Remaining, l.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create listing: %w", err)
	}
	return id, nil
}

// GetByID retrieves a single listing by id.
func (s *ListingStore) GetByID(ctx context.Context, id int64) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

// Reduce decrements remaining by amount and deactivates the listing when it
// hits zero, in one conditional statement. When the guard fails the listing
// is re-read to surface the precise precondition that failed.
func (s *ListingStore) Reduce(ctx context.Context, id int64, amount int64) (domain.Listing, error) {
	const query = `
		UPDATE listings
		SET remaining = remaining - $2,
		    active = (remaining - $2) > 0,
		    updated_at = NOW()
		WHERE id = $1 AND active AND remaining >= $2
		RETURNING ` + listingCols

	row := s.pool.QueryRow(ctx, query, id, amount)
	l, err := scanListing(row)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, fmt.Errorf("postgres: reduce listing %d: %w", id, err)
	}

	cur, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return domain.Listing{}, getErr
	}
	if !cur.Active {
		return domain.Listing{}, domain.ErrNotActive
	}
	return domain.Listing{}, domain.ErrInsufficientCustody
}

// ListActive returns active listings ordered by id with pagination.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingCols + ` FROM listings WHERE active ORDER BY id`
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
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	return scanListingRows(rows)
}

// ListClosedBefore returns inactive listings last touched before the cutoff,
// oldest first. Used by the archiver.
func (s *ListingStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingCols+` FROM listings
		 WHERE NOT active AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed listings: %w", err)
	}
	defer rows.Close()

	return scanListingRows(rows)
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
