package handler

import (
	"log/slog"
	"net/http"

	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/service"
)

// AdminHandler serves role management, asset registry, and audit endpoints.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With(slog.String("handler", "admin")),
	}
}

type roleRequest struct {
	Role      string `json:"role"`
	Principal string `json:"principal"`
}

// GrantRole grants a role to a principal. Admin only.
// POST /api/roles
func (h *AdminHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	target, ok := parseAddress(req.Principal)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid principal address")
		return
	}

	if err := h.admin.GrantRole(r.Context(), caller, domain.Role(req.Role), target); err != nil {
		h.logger.WarnContext(r.Context(), "grant role",
			slog.String("role", req.Role),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":      req.Role,
		"principal": target.Hex(),
		"granted":   true,
	})
}

// RevokeRole removes a role from a principal. Admin only.
// DELETE /api/roles
func (h *AdminHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	target, ok := parseAddress(req.Principal)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid principal address")
		return
	}

	if err := h.admin.RevokeRole(r.Context(), caller, domain.Role(req.Role), target); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":      req.Role,
		"principal": target.Hex(),
		"revoked":   true,
	})
}

// HasRole reports whether a principal holds a role.
// GET /api/roles/{role}/{address}
func (h *AdminHandler) HasRole(w http.ResponseWriter, r *http.Request) {
	target, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	held, err := h.admin.HasRole(r.Context(), domain.Role(r.PathValue("role")), target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":      r.PathValue("role"),
		"principal": target.Hex(),
		"held":      held,
	})
}

type registerAssetRequest struct {
	Address    string   `json:"address"`
	Symbol     string   `json:"symbol"`
	Interfaces []string `json:"interfaces"`
}

// RegisterAsset adds an asset ledger to the registry. Admin only.
// POST /api/assets
func (h *AdminHandler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req registerAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	asset := domain.Asset{
		Address: addr,
		Symbol:  req.Symbol,
	}
	for _, id := range req.Interfaces {
		asset.Interfaces = append(asset.Interfaces, domain.InterfaceID(id))
	}

	if err := h.admin.RegisterAsset(r.Context(), caller, asset); err != nil {
		h.logger.WarnContext(r.Context(), "register asset",
			slog.String("asset", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// ListAssets returns the registered asset ledgers.
// GET /api/assets
func (h *AdminHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.admin.ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

// AuditLog returns recent audit entries. Admin only. Registered as a POST so
// the request carries identity headers.
// POST /api/audit/query
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	entries, err := h.admin.AuditLog(r.Context(), caller, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
