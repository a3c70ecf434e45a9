package handler

import (
	"log/slog"
	"net/http"

	"github.com/mintmarket/marketd/internal/service"
)

// ListingHandler serves the fixed-price listing endpoints.
type ListingHandler struct {
	listings *service.ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger.With(slog.String("handler", "listing")),
	}
}

// ListListings returns active listings with pagination.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.ListActive(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list listings", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// GetListing returns one listing by id.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	l, err := h.listings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type createListingRequest struct {
	Asset        string `json:"asset"`
	TokenID      int64  `json:"token_id"`
	PricePerUnit int64  `json:"price_per_unit"`
	Amount       int64  `json:"amount"`
}

// CreateListing lists tokens for sale at a fixed unit price.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	l, err := h.listings.List(r.Context(), caller, asset, req.TokenID, req.PricePerUnit, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create listing", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

type buyListingRequest struct {
	Amount  int64 `json:"amount"`
	Payment int64 `json:"payment"`
}

// BuyListing purchases units from a listing, paying from the caller's
// deposited funds.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	var req buyListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	l, err := h.listings.Buy(r.Context(), caller, id, req.Amount, req.Payment)
	if err != nil {
		h.logger.WarnContext(r.Context(), "buy listing",
			slog.Int64("listing_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type cancelListingRequest struct {
	Amount int64 `json:"amount"`
}

// CancelListing returns units from a listing to the seller.
// POST /api/listings/{id}/cancel
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	var req cancelListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	l, err := h.listings.Cancel(r.Context(), caller, id, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "cancel listing",
			slog.Int64("listing_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
