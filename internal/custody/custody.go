// Package custody moves tokens into and out of marketplace possession. It
// sits between the listing/auction services and the two asset-ledger
// variants, resolving which variant a given asset implements through its
// advertised capability interfaces on every call.
package custody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/domain"
)

// variant is the dispatch result of a capability-introspection query.
type variant int

const (
	variantUnique variant = iota
	variantMulti
)

// Service implements marketplace custody over the registered asset ledgers.
// The vault address is the principal under which custodied tokens are held;
// it is distinct from final ownership, which returns to buyers and sellers
// when custody is released.
type Service struct {
	assets domain.AssetStore
	tokens domain.TokenStore
	roles  domain.RoleStore
	vault  common.Address
	logger *slog.Logger
}

// New creates a custody Service holding tokens under the given vault address.
func New(assets domain.AssetStore, tokens domain.TokenStore, roles domain.RoleStore, vault common.Address, logger *slog.Logger) *Service {
	return &Service{
		assets: assets,
		tokens: tokens,
		roles:  roles,
		vault:  vault,
		logger: logger.With(slog.String("component", "custody")),
	}
}

// Vault returns the address custodied tokens are held under.
func (s *Service) Vault() common.Address {
	return s.vault
}

// resolve queries the asset's advertised interfaces and picks the ledger
// variant for this call. Unique-asset semantics win if a ledger advertises
// both.
func (s *Service) resolve(ctx context.Context, asset common.Address) (variant, error) {
	a, err := s.assets.GetByAddress(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("custody: resolve asset %s: %w", asset.Hex(), err)
	}
	switch {
	case a.Supports(domain.InterfaceUniqueAsset):
		return variantUnique, nil
	case a.Supports(domain.InterfaceMultiAsset):
		return variantMulti, nil
	default:
		return 0, fmt.Errorf("custody: asset %s advertises no supported interface: %w", asset.Hex(), domain.ErrNotFound)
	}
}

// checkAmount validates the unit count for the resolved variant: the
// unique-asset variant carries exactly one unit per token id.
func checkAmount(v variant, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if v == variantUnique && amount != 1 {
		return domain.ErrInvalidAmount
	}
	return nil
}

// Pull moves amount units of the token from the holder into the vault.
func (s *Service) Pull(ctx context.Context, asset common.Address, tokenID int64, from common.Address, amount int64) error {
	v, err := s.resolve(ctx, asset)
	if err != nil {
		return err
	}
	if err := checkAmount(v, amount); err != nil {
		return err
	}

	switch v {
	case variantUnique:
		err = s.tokens.TransferUnique(ctx, asset, tokenID, from, s.vault)
	case variantMulti:
		err = s.tokens.MoveBalance(ctx, asset, tokenID, from, s.vault, amount)
	}
	if err != nil {
		return fmt.Errorf("custody: pull %d x token %d of %s from %s: %w", amount, tokenID, asset.Hex(), from.Hex(), err)
	}

	s.logger.DebugContext(ctx, "custody: pulled into vault",
		slog.String("asset", asset.Hex()),
		slog.Int64("token_id", tokenID),
		slog.Int64("amount", amount),
	)
	return nil
}

// Release moves amount units of the token from the vault to the recipient.
func (s *Service) Release(ctx context.Context, asset common.Address, tokenID int64, to common.Address, amount int64) error {
	v, err := s.resolve(ctx, asset)
	if err != nil {
		return err
	}
	if err := checkAmount(v, amount); err != nil {
		return err
	}

	switch v {
	case variantUnique:
		err = s.tokens.TransferUnique(ctx, asset, tokenID, s.vault, to)
	case variantMulti:
		err = s.tokens.MoveBalance(ctx, asset, tokenID, s.vault, to, amount)
	}
	if err != nil {
		return fmt.Errorf("custody: release %d x token %d of %s to %s: %w", amount, tokenID, asset.Hex(), to.Hex(), err)
	}

	s.logger.DebugContext(ctx, "custody: released from vault",
		slog.String("asset", asset.Hex()),
		slog.Int64("token_id", tokenID),
		slog.Int64("amount", amount),
	)
	return nil
}

// Mint creates new token units on the asset ledger. The caller must hold the
// minting role.
func (s *Service) Mint(ctx context.Context, caller, asset common.Address, to common.Address, uri string, tokenID, amount int64) error {
	ok, err := s.roles.Has(ctx, domain.RoleMinter, caller)
	if err != nil {
		return fmt.Errorf("custody: minter role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}

	v, err := s.resolve(ctx, asset)
	if err != nil {
		return err
	}
	if err := checkAmount(v, amount); err != nil {
		return err
	}

	switch v {
	case variantUnique:
		err = s.tokens.InsertUnique(ctx, asset, tokenID, to, uri)
	case variantMulti:
		err = s.tokens.AddBalance(ctx, asset, tokenID, to, amount)
	}
	if err != nil {
		return fmt.Errorf("custody: mint %d x token %d of %s to %s: %w", amount, tokenID, asset.Hex(), to.Hex(), err)
	}

	s.logger.InfoContext(ctx, "custody: minted",
		slog.String("asset", asset.Hex()),
		slog.Int64("token_id", tokenID),
		slog.Int64("amount", amount),
		slog.String("to", to.Hex()),
	)
	return nil
}

// BalanceOf reports how many units of the token the owner holds, dispatching
// on the ledger variant. For the unique-asset variant the answer is 0 or 1.
func (s *Service) BalanceOf(ctx context.Context, asset common.Address, owner common.Address, tokenID int64) (int64, error) {
	v, err := s.resolve(ctx, asset)
	if err != nil {
		return 0, err
	}

	switch v {
	case variantUnique:
		holder, err := s.tokens.OwnerOf(ctx, asset, tokenID)
		if err != nil {
			return 0, fmt.Errorf("custody: owner of token %d of %s: %w", tokenID, asset.Hex(), err)
		}
		if holder == owner {
			return 1, nil
		}
		return 0, nil
	default:
		bal, err := s.tokens.BalanceOf(ctx, asset, tokenID, owner)
		if err != nil {
			return 0, fmt.Errorf("custody: balance of token %d of %s: %w", tokenID, asset.Hex(), err)
		}
		return bal, nil
	}
}
