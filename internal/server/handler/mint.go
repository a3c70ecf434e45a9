package handler

import (
	"log/slog"
	"net/http"

	"github.com/mintmarket/marketd/internal/custody"
)

// MintHandler serves token issuance and ledger balance endpoints.
type MintHandler struct {
	custody *custody.Service
	logger  *slog.Logger
}

// NewMintHandler creates a MintHandler.
func NewMintHandler(c *custody.Service, logger *slog.Logger) *MintHandler {
	return &MintHandler{
		custody: c,
		logger:  logger.With(slog.String("handler", "mint")),
	}
}

type mintRequest struct {
	Asset     string `json:"asset"`
	TokenID   int64  `json:"token_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	URI       string `json:"uri"`
}

// Mint issues new tokens on a registered ledger. Caller must hold the minter
// role on that ledger.
// POST /api/mint
func (h *MintHandler) Mint(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}
	recipient, ok := parseAddress(req.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := h.custody.Mint(r.Context(), caller, asset, recipient, req.URI, req.TokenID, req.Amount); err != nil {
		h.logger.WarnContext(r.Context(), "mint",
			slog.String("asset", asset.Hex()),
			slog.Int64("token_id", req.TokenID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"asset":     asset.Hex(),
		"token_id":  req.TokenID,
		"recipient": recipient.Hex(),
		"amount":    req.Amount,
	})
}

// Balance returns how many units of a token a principal holds on a ledger.
// For unique-asset ledgers the result is 0 or 1.
// GET /api/balances/{asset}/{token}/{address}
func (h *MintHandler) Balance(w http.ResponseWriter, r *http.Request) {
	asset, ok := parseAddress(r.PathValue("asset"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}
	owner, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	tokenID, err := pathID(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	bal, err := h.custody.BalanceOf(r.Context(), asset, owner, tokenID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":    asset.Hex(),
		"token_id": tokenID,
		"owner":    owner.Hex(),
		"balance":  bal,
	})
}
