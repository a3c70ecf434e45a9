package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintmarket/marketd/internal/domain"
)

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates an AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// Register upserts an asset ledger and its advertised interfaces.
func (s *AssetStore) Register(ctx context.Context, a domain.Asset) error {
	ifaces := make([]string, len(a.Interfaces))
	for i, id := range a.Interfaces {
		ifaces[i] = string(id)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (address, symbol, interfaces) VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET symbol = EXCLUDED.symbol, interfaces = EXCLUDED.interfaces`,
		a.Address.Hex(), a.Symbol, ifaces)
	if err != nil {
		return fmt.Errorf("postgres: register asset %s: %w", a.Address.Hex(), err)
	}
	return nil
}

// GetByAddress retrieves a registered asset ledger.
func (s *AssetStore) GetByAddress(ctx context.Context, addr common.Address) (domain.Asset, error) {
	var a domain.Asset
	var address string
	var ifaces []string

	err := s.pool.QueryRow(ctx,
		`SELECT address, symbol, interfaces, created_at FROM assets WHERE address = $1`,
		addr.Hex()).Scan(&address, &a.Symbol, &ifaces, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Asset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: get asset %s: %w", addr.Hex(), err)
	}

	a.Address = common.HexToAddress(address)
	a.Interfaces = make([]domain.InterfaceID, len(ifaces))
	for i, id := range ifaces {
		a.Interfaces[i] = domain.InterfaceID(id)
	}
	return a, nil
}

// List returns all registered asset ledgers.
func (s *AssetStore) List(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, symbol, interfaces, created_at FROM assets ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var address string
		var ifaces []string
		if err := rows.Scan(&address, &a.Symbol, &ifaces, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		a.Address = common.HexToAddress(address)
		a.Interfaces = make([]domain.InterfaceID, len(ifaces))
		for i, id := range ifaces {
			a.Interfaces[i] = domain.InterfaceID(id)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TokenStore implements domain.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// InsertUnique mints a unique token. Fails if the token id already exists on
// the asset.
func (s *TokenStore) InsertUnique(ctx context.Context, asset common.Address, tokenID int64, owner common.Address, uri string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO unique_tokens (asset, token_id, owner, uri) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset, token_id) DO NOTHING`,
		asset.Hex(), tokenID, owner.Hex(), uri)
	if err != nil {
		return fmt.Errorf("postgres: insert unique token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

// OwnerOf returns the current owner of a unique token.
func (s *TokenStore) OwnerOf(ctx context.Context, asset common.Address, tokenID int64) (common.Address, error) {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT owner FROM unique_tokens WHERE asset = $1 AND token_id = $2`,
		asset.Hex(), tokenID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Address{}, domain.ErrNotFound
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("postgres: owner of token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	return common.HexToAddress(owner), nil
}

// TransferUnique moves a unique token between owners, conditional on the
// source currently owning it.
func (s *TokenStore) TransferUnique(ctx context.Context, asset common.Address, tokenID int64, from, to common.Address) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE unique_tokens SET owner = $4
		 WHERE asset = $1 AND token_id = $2 AND owner = $3`,
		asset.Hex(), tokenID, from.Hex(), to.Hex())
	if err != nil {
		return fmt.Errorf("postgres: transfer token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM unique_tokens WHERE asset = $1 AND token_id = $2)`,
			asset.Hex(), tokenID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check token %d of %s: %w", tokenID, asset.Hex(), err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInsufficientCustody
	}
	return nil
}

// AddBalance mints amount units of a multi-asset token to the owner.
func (s *TokenStore) AddBalance(ctx context.Context, asset common.Address, tokenID int64, owner common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO multi_balances (asset, token_id, owner, balance) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset, token_id, owner) DO UPDATE SET balance = multi_balances.balance + EXCLUDED.balance`,
		asset.Hex(), tokenID, owner.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: add balance of token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	return nil
}

// MoveBalance transfers amount units between owners inside one transaction,
// conditional on the source balance covering the amount.
func (s *TokenStore) MoveBalance(ctx context.Context, asset common.Address, tokenID int64, from, to common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin move balance: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE multi_balances SET balance = balance - $4
		 WHERE asset = $1 AND token_id = $2 AND owner = $3 AND balance >= $4`,
		asset.Hex(), tokenID, from.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: debit balance of token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientCustody
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO multi_balances (asset, token_id, owner, balance) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset, token_id, owner) DO UPDATE SET balance = multi_balances.balance + EXCLUDED.balance`,
		asset.Hex(), tokenID, to.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: credit balance of token %d of %s: %w", tokenID, asset.Hex(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit move balance: %w", err)
	}
	return nil
}

// BalanceOf returns the owner's balance of a multi-asset token.
func (s *TokenStore) BalanceOf(ctx context.Context, asset common.Address, tokenID int64, owner common.Address) (int64, error) {
	var bal int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM multi_balances WHERE asset = $1 AND token_id = $2 AND owner = $3`,
		asset.Hex(), tokenID, owner.Hex()).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of token %d of %s: %w", tokenID, asset.Hex(), err)
	}
	return bal, nil
}
