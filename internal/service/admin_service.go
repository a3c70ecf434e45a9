package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/domain"
)

// AdminService manages capability grants and the asset-ledger registry. Every
// mutation requires the caller to already hold the administrative role; the
// bootstrap grant is written at startup from configuration.
type AdminService struct {
	roles  domain.RoleStore
	assets domain.AssetStore
	params domain.ParamStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAdminService creates an AdminService with all required dependencies.
func NewAdminService(
	roles domain.RoleStore,
	assets domain.AssetStore,
	params domain.ParamStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		roles:  roles,
		assets: assets,
		params: params,
		audit:  audit,
		logger: logger,
	}
}

// HasRole reports whether the principal holds the role.
func (s *AdminService) HasRole(ctx context.Context, role domain.Role, principal common.Address) (bool, error) {
	if !domain.ValidRole(role) {
		return false, domain.ErrUnknownRole
	}
	ok, err := s.roles.Has(ctx, role, principal)
	if err != nil {
		return false, fmt.Errorf("admin_service: role check: %w", err)
	}
	return ok, nil
}

// GrantRole grants the role to the principal. Caller must hold the
// administrative role.
func (s *AdminService) GrantRole(ctx context.Context, caller common.Address, role domain.Role, principal common.Address) error {
	if !domain.ValidRole(role) {
		return domain.ErrUnknownRole
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.roles.Grant(ctx, role, principal); err != nil {
		return fmt.Errorf("admin_service: grant %s to %s: %w", role, principal.Hex(), err)
	}

	s.logAudit(ctx, "role_granted", map[string]any{
		"role":      string(role),
		"principal": principal.Hex(),
		"granted_by": caller.Hex(),
	})
	s.logger.InfoContext(ctx, "admin_service: role granted",
		slog.String("role", string(role)),
		slog.String("principal", principal.Hex()),
	)
	return nil
}

// RevokeRole removes the role from the principal. Caller must hold the
// administrative role.
func (s *AdminService) RevokeRole(ctx context.Context, caller common.Address, role domain.Role, principal common.Address) error {
	if !domain.ValidRole(role) {
		return domain.ErrUnknownRole
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.roles.Revoke(ctx, role, principal); err != nil {
		return fmt.Errorf("admin_service: revoke %s from %s: %w", role, principal.Hex(), err)
	}

	s.logAudit(ctx, "role_revoked", map[string]any{
		"role":      string(role),
		"principal": principal.Hex(),
		"revoked_by": caller.Hex(),
	})
	return nil
}

// RegisterAsset adds an asset ledger to the registry with its advertised
// capability interfaces. Caller must hold the administrative role.
func (s *AdminService) RegisterAsset(ctx context.Context, caller common.Address, asset domain.Asset) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !asset.Supports(domain.InterfaceUniqueAsset) && !asset.Supports(domain.InterfaceMultiAsset) {
		return fmt.Errorf("admin_service: asset %s advertises no supported interface: %w", asset.Address.Hex(), domain.ErrInvalidAmount)
	}
	if err := s.assets.Register(ctx, asset); err != nil {
		return fmt.Errorf("admin_service: register asset %s: %w", asset.Address.Hex(), err)
	}

	s.logAudit(ctx, "asset_registered", map[string]any{
		"asset":  asset.Address.Hex(),
		"symbol": asset.Symbol,
	})
	return nil
}

// ListAssets returns the registered asset ledgers.
func (s *AdminService) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	assets, err := s.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service: list assets: %w", err)
	}
	return assets, nil
}

// Bootstrap writes the deployment-time admin grant and seeds the marketplace
// parameters if they are absent. Called once at startup.
func (s *AdminService) Bootstrap(ctx context.Context, admin common.Address, auctionDurationSec, minBidIncrement int64) error {
	if admin != (common.Address{}) {
		if err := s.roles.Grant(ctx, domain.RoleAdmin, admin); err != nil {
			return fmt.Errorf("admin_service: bootstrap admin grant: %w", err)
		}
	}

	seed := func(key string, value int64) error {
		_, err := s.params.GetInt64(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return s.params.SetInt64(ctx, key, value)
		}
		return err
	}
	if err := seed(domain.ParamAuctionDurationSec, auctionDurationSec); err != nil {
		return fmt.Errorf("admin_service: seed auction duration: %w", err)
	}
	if err := seed(domain.ParamMinBidIncrement, minBidIncrement); err != nil {
		return fmt.Errorf("admin_service: seed min bid increment: %w", err)
	}
	return nil
}

// AuditLog returns audit entries newest first. Caller must hold the
// administrative role.
func (s *AdminService) AuditLog(ctx context.Context, caller common.Address, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	entries, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("admin_service: list audit log: %w", err)
	}
	return entries, nil
}

func (s *AdminService) requireAdmin(ctx context.Context, caller common.Address) error {
	ok, err := s.roles.Has(ctx, domain.RoleAdmin, caller)
	if err != nil {
		return fmt.Errorf("admin_service: admin role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *AdminService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "admin_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
