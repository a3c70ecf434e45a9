package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mintmarket/marketd/internal/service"
)

// AuctionHandler serves the timed-auction endpoints.
type AuctionHandler struct {
	auctions *service.AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions *service.AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		logger:   logger.With(slog.String("handler", "auction")),
	}
}

// ListAuctions returns active auctions with pagination.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.ListActive(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list auctions", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": auctions})
}

// GetAuction returns one auction by id, including the current highest bid.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	a, err := h.auctions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type createAuctionRequest struct {
	Asset    string `json:"asset"`
	TokenID  int64  `json:"token_id"`
	MinPrice int64  `json:"min_price"`
	Amount   int64  `json:"amount"`
}

// CreateAuction opens an auction ending after the configured duration.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createAuctionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	a, err := h.auctions.Create(r.Context(), caller, asset, req.TokenID, req.MinPrice, req.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create auction", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type makeBidRequest struct {
	Payment int64 `json:"payment"`
}

// MakeBid places a bid on an auction, paying from the caller's deposited
// funds.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) MakeBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req makeBidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	a, err := h.auctions.MakeBid(r.Context(), caller, id, req.Payment)
	if err != nil {
		h.logger.WarnContext(r.Context(), "make bid",
			slog.Int64("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CancelAuction ends a bid-free auction early, returning custody to the
// seller.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	if err := h.auctions.Cancel(r.Context(), caller, id); err != nil {
		h.logger.WarnContext(r.Context(), "cancel auction",
			slog.Int64("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auction_id": id, "cancelled": true})
}

// FinishAuction settles an auction whose deadline has passed.
// POST /api/auctions/{id}/finish
func (h *AuctionHandler) FinishAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	a, err := h.auctions.Finish(r.Context(), caller, id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "finish auction",
			slog.Int64("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetParams returns the current auction parameters.
// GET /api/params
func (h *AuctionHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	duration, err := h.auctions.AuctionTime(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	increment, err := h.auctions.BidForEnding(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_duration_sec": int64(duration / time.Second),
		"min_bid_increment":    increment,
	})
}

type setAuctionTimeRequest struct {
	DurationSec int64 `json:"duration_sec"`
}

// SetAuctionTime updates the auction duration. Admin only.
// PUT /api/params/auction-time
func (h *AuctionHandler) SetAuctionTime(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req setAuctionTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.auctions.SetAuctionTime(r.Context(), caller, time.Duration(req.DurationSec)*time.Second); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auction_duration_sec": req.DurationSec})
}

type setMinBidRequest struct {
	MinBidIncrement int64 `json:"min_bid_increment"`
}

// SetMinBid updates the minimum bid increment. Admin only.
// PUT /api/params/min-bid
func (h *AuctionHandler) SetMinBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req setMinBidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.auctions.SetMinBid(r.Context(), caller, req.MinBidIncrement); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"min_bid_increment": req.MinBidIncrement})
}
