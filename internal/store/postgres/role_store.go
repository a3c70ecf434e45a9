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

// RoleStore implements domain.RoleStore using PostgreSQL.
type RoleStore struct {
	pool *pgxpool.Pool
}

// NewRoleStore creates a RoleStore backed by the given connection pool.
func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

// Grant records a role for a principal. Granting an already held role is a
// no-op.
func (s *RoleStore) Grant(ctx context.Context, role domain.Role, principal common.Address) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO role_grants (role, principal) VALUES ($1, $2)
		 ON CONFLICT (role, principal) DO NOTHING`,
		string(role), principal.Hex())
	if err != nil {
		return fmt.Errorf("postgres: grant role %s: %w", role, err)
	}
	return nil
}

// Revoke removes a role from a principal. Revoking an absent role is a no-op.
func (s *RoleStore) Revoke(ctx context.Context, role domain.Role, principal common.Address) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM role_grants WHERE role = $1 AND principal = $2`,
		string(role), principal.Hex())
	if err != nil {
		return fmt.Errorf("postgres: revoke role %s: %w", role, err)
	}
	return nil
}

// Has reports whether the principal holds the role.
func (s *RoleStore) Has(ctx context.Context, role domain.Role, principal common.Address) (bool, error) {
	var held bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM role_grants WHERE role = $1 AND principal = $2)`,
		string(role), principal.Hex()).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("postgres: check role %s: %w", role, err)
	}
	return held, nil
}

// ParamStore implements domain.ParamStore using PostgreSQL.
type ParamStore struct {
	pool *pgxpool.Pool
}

// NewParamStore creates a ParamStore backed by the given connection pool.
func NewParamStore(pool *pgxpool.Pool) *ParamStore {
	return &ParamStore{pool: pool}
}

// GetInt64 reads a marketplace parameter, returning ErrNotFound when unset.
func (s *ParamStore) GetInt64(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM market_params WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get param %s: %w", key, err)
	}
	return value, nil
}

// SetInt64 upserts a marketplace parameter.
func (s *ParamStore) SetInt64(ctx context.Context, key string, value int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_params (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres: set param %s: %w", key, err)
	}
	return nil
}
