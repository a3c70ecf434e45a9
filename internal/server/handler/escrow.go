package handler

import (
	"log/slog"
	"net/http"

	"github.com/mintmarket/marketd/internal/service"
)

// EscrowHandler serves the pull-payment and deposit endpoints.
type EscrowHandler struct {
	escrow *service.EscrowService
	logger *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler.
func NewEscrowHandler(escrow *service.EscrowService, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{
		escrow: escrow,
		logger: logger.With(slog.String("handler", "escrow")),
	}
}

// Withdraw drains the caller's escrow balance and issues the payout.
// POST /api/escrow/withdraw
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	amount, err := h.escrow.Withdraw(r.Context(), caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "withdraw",
			slog.String("principal", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": caller.Hex(),
		"amount":    amount,
	})
}

// EscrowBalance returns a principal's withdrawable escrow balance.
// GET /api/escrow/{address}
func (h *EscrowHandler) EscrowBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	bal, err := h.escrow.Balance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": addr.Hex(),
		"balance":   bal,
	})
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit credits the caller's spendable funds balance.
// POST /api/funds/deposit
func (h *EscrowHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.escrow.Deposit(r.Context(), caller, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": caller.Hex(),
		"deposited": req.Amount,
	})
}

// FundsBalance returns a principal's spendable deposit balance.
// GET /api/funds/{address}
func (h *EscrowHandler) FundsBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	bal, err := h.escrow.FundsBalance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": addr.Hex(),
		"balance":   bal,
	})
}
