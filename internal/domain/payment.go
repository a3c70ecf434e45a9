package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentGateway issues the outbound payment after a withdrawal has drained
// the caller's escrow balance. Implementations are external collaborators and
// must be treated as untrusted: the escrow balance is zeroed strictly before
// Payout is invoked.
type PaymentGateway interface {
	Payout(ctx context.Context, to common.Address, amount int64) error
}
