package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintmarket/marketd/internal/domain"
	"github.com/mintmarket/marketd/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a service error to an HTTP status. Unknown errors are
// reported as 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, domain.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, "unknown role")
	case errors.Is(err, domain.ErrInsufficientPayment):
		writeError(w, http.StatusPaymentRequired, "insufficient payment")
	case errors.Is(err, domain.ErrNotActive):
		writeError(w, http.StatusConflict, "not active")
	case errors.Is(err, domain.ErrAuctionNotEnded):
		writeError(w, http.StatusConflict, "auction not ended")
	case errors.Is(err, domain.ErrAuctionEnded):
		writeError(w, http.StatusConflict, "auction ended")
	case errors.Is(err, domain.ErrBidAlreadyPlaced):
		writeError(w, http.StatusConflict, "bid already placed")
	case errors.Is(err, domain.ErrInsufficientCustody):
		writeError(w, http.StatusConflict, "insufficient holdings")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "resource busy, retry")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// principal extracts the authenticated caller. Handlers for mutating routes
// rely on the identity middleware having populated it.
func principal(r *http.Request) (common.Address, bool) {
	return middleware.Principal(r.Context())
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathID extracts a numeric path parameter using Go 1.22+ built-in routing.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// parseAddress validates and parses a hex address from request input.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
