package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
)

func TestEscrowWithdrawDrainsToZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.stores.Escrow().Credit(ctx, seller, 150))

	amount, err := e.escrow.Withdraw(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(150), amount)
	assert.Equal(t, int64(150), e.gateway.payouts[seller])
	assert.Equal(t, int64(0), e.escrowBalance(t, seller))

	// A second withdraw observes an empty balance and is a no-op.
	amount, err = e.escrow.Withdraw(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)
	assert.Equal(t, int64(150), e.gateway.payouts[seller])
}

func TestEscrowWithdrawRestoresOnGatewayFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.stores.Escrow().Credit(ctx, seller, 70))
	e.gateway.fail = true

	_, err := e.escrow.Withdraw(ctx, seller)
	require.Error(t, err)

	// The balance is restored so a later withdraw can succeed.
	assert.Equal(t, int64(70), e.escrowBalance(t, seller))

	e.gateway.fail = false
	amount, err := e.escrow.Withdraw(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(70), amount)
}

func TestEscrowDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.escrow.Deposit(ctx, buyer, 500))
	bal, err := e.escrow.FundsBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)

	err = e.escrow.Deposit(ctx, buyer, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	err = e.escrow.Deposit(ctx, buyer, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
