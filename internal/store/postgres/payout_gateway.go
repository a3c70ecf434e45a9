package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintmarket/marketd/internal/domain"
)

// PayoutGateway implements domain.PaymentGateway by recording settled
// payouts. Settlement against an external rail happens out of band against
// the payouts table.
type PayoutGateway struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPayoutGateway creates a PayoutGateway backed by the given connection
// pool.
func NewPayoutGateway(pool *pgxpool.Pool, logger *slog.Logger) *PayoutGateway {
	return &PayoutGateway{
		pool:   pool,
		logger: logger.With("component", "payout_gateway"),
	}
}

// Payout records a payout of amount to the principal.
func (g *PayoutGateway) Payout(ctx context.Context, to common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO payouts (principal, amount) VALUES ($1, $2)`,
		to.Hex(), amount)
	if err != nil {
		return fmt.Errorf("postgres: record payout to %s: %w", to.Hex(), err)
	}
	g.logger.Info("payout recorded", "to", to.Hex(), "amount", amount)
	return nil
}
