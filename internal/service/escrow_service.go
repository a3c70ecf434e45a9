package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/domain"
)

// EscrowService owns the pull-payment path: settlement events credit escrow
// balances, and only the credited principal's own Withdraw call drains them.
type EscrowService struct {
	escrow  domain.EscrowStore
	funds   domain.FundsStore
	gateway domain.PaymentGateway
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewEscrowService creates an EscrowService with all required dependencies.
func NewEscrowService(
	escrow domain.EscrowStore,
	funds domain.FundsStore,
	gateway domain.PaymentGateway,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *EscrowService {
	return &EscrowService{
		escrow:  escrow,
		funds:   funds,
		gateway: gateway,
		locks:   locks,
		bus:     bus,
		audit:   audit,
		logger:  logger,
	}
}

// Withdraw drains the caller's escrow balance and issues the outbound
// payment. The balance is zeroed strictly before the gateway call so a
// reentrant Withdraw observes an empty balance. A zero balance is a no-op.
func (s *EscrowService) Withdraw(ctx context.Context, caller common.Address) (int64, error) {
	unlock, err := s.locks.Acquire(ctx, "escrow:"+caller.Hex(), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("escrow_service: withdraw %s: %w", caller.Hex(), err)
	}
	defer unlock()

	amount, err := s.escrow.Drain(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("escrow_service: drain %s: %w", caller.Hex(), err)
	}
	if amount == 0 {
		return 0, nil
	}

	if err := s.gateway.Payout(ctx, caller, amount); err != nil {
		// Restore the balance; the drain-then-pay ordering still held for
		// any reentrant observer.
		if creditErr := s.escrow.Credit(ctx, caller, amount); creditErr != nil {
			s.logger.ErrorContext(ctx, "escrow_service: restore after failed payout",
				slog.String("principal", caller.Hex()),
				slog.Int64("amount", amount),
				slog.String("error", creditErr.Error()),
			)
		}
		return 0, fmt.Errorf("escrow_service: payout %d to %s: %w", amount, caller.Hex(), err)
	}

	s.logAudit(ctx, "escrow_withdrawn", map[string]any{
		"principal": caller.Hex(),
		"amount":    amount,
	})
	s.publish(ctx, map[string]any{
		"event":     "escrow_withdrawn",
		"principal": caller.Hex(),
		"amount":    amount,
	})

	s.logger.InfoContext(ctx, "escrow_service: withdrawn",
		slog.String("principal", caller.Hex()),
		slog.Int64("amount", amount),
	)
	return amount, nil
}

// Balance returns the principal's withdrawable escrow balance.
func (s *EscrowService) Balance(ctx context.Context, principal common.Address) (int64, error) {
	bal, err := s.escrow.Balance(ctx, principal)
	if err != nil {
		return 0, fmt.Errorf("escrow_service: balance %s: %w", principal.Hex(), err)
	}
	return bal, nil
}

// Deposit credits the caller's spendable funds balance, the pool that backs
// value-carrying buy and bid calls.
func (s *EscrowService) Deposit(ctx context.Context, caller common.Address, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.funds.Deposit(ctx, caller, amount); err != nil {
		return fmt.Errorf("escrow_service: deposit %d for %s: %w", amount, caller.Hex(), err)
	}

	s.logAudit(ctx, "funds_deposited", map[string]any{
		"principal": caller.Hex(),
		"amount":    amount,
	})
	return nil
}

// FundsBalance returns the principal's spendable deposit balance.
func (s *EscrowService) FundsBalance(ctx context.Context, principal common.Address) (int64, error) {
	bal, err := s.funds.Balance(ctx, principal)
	if err != nil {
		return 0, fmt.Errorf("escrow_service: funds balance %s: %w", principal.Hex(), err)
	}
	return bal, nil
}

func (s *EscrowService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "escrow_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EscrowService) publish(ctx context.Context, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelEscrow, data); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "escrow_service: publish event failed",
			slog.String("error", err.Error()),
		)
	}
}
