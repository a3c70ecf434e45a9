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

// EscrowStore implements domain.EscrowStore using PostgreSQL.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates an EscrowStore backed by the given connection pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

// Credit adds amount to the principal's withdrawable balance.
func (s *EscrowStore) Credit(ctx context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_balances (principal, balance) VALUES ($1, $2)
		 ON CONFLICT (principal) DO UPDATE SET balance = escrow_balances.balance + EXCLUDED.balance`,
		principal.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: credit escrow %s: %w", principal.Hex(), err)
	}
	return nil
}

// Drain atomically zeroes the principal's balance and returns the prior
// amount. An absent or zero balance drains to zero without error.
func (s *EscrowStore) Drain(ctx context.Context, principal common.Address) (int64, error) {
	const query = `
		UPDATE escrow_balances e
		SET balance = 0
		FROM (SELECT principal, balance FROM escrow_balances WHERE principal = $1 FOR UPDATE) prev
		WHERE e.principal = prev.principal AND prev.balance > 0
		RETURNING prev.balance`

	var amount int64
	err := s.pool.QueryRow(ctx, query, principal.Hex()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: drain escrow %s: %w", principal.Hex(), err)
	}
	return amount, nil
}

// Balance returns the principal's withdrawable balance.
func (s *EscrowStore) Balance(ctx context.Context, principal common.Address) (int64, error) {
	var bal int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM escrow_balances WHERE principal = $1`,
		principal.Hex()).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: escrow balance %s: %w", principal.Hex(), err)
	}
	return bal, nil
}

// FundsStore implements domain.FundsStore using PostgreSQL.
type FundsStore struct {
	pool *pgxpool.Pool
}

// NewFundsStore creates a FundsStore backed by the given connection pool.
func NewFundsStore(pool *pgxpool.Pool) *FundsStore {
	return &FundsStore{pool: pool}
}

// Deposit adds amount to the principal's spendable balance.
func (s *FundsStore) Deposit(ctx context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO funds_accounts (principal, balance) VALUES ($1, $2)
		 ON CONFLICT (principal) DO UPDATE SET balance = funds_accounts.balance + EXCLUDED.balance`,
		principal.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: deposit funds %s: %w", principal.Hex(), err)
	}
	return nil
}

// Debit subtracts amount from the principal's spendable balance, failing
// without effect when the balance does not cover it.
func (s *FundsStore) Debit(ctx context.Context, principal common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE funds_accounts SET balance = balance - $2
		 WHERE principal = $1 AND balance >= $2`,
		principal.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: debit funds %s: %w", principal.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientPayment
	}
	return nil
}

// Balance returns the principal's spendable balance.
func (s *FundsStore) Balance(ctx context.Context, principal common.Address) (int64, error) {
	var bal int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM funds_accounts WHERE principal = $1`,
		principal.Hex()).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: funds balance %s: %w", principal.Hex(), err)
	}
	return bal, nil
}
