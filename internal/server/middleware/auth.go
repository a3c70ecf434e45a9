package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	marketcrypto "github.com/mintmarket/marketd/internal/crypto"
)

// Request headers carrying the caller's identity proof.
const (
	HeaderAddress   = "X-Market-Address"
	HeaderTimestamp = "X-Market-Timestamp"
	HeaderSignature = "X-Market-Signature"
)

type principalKey struct{}

// Identity returns middleware that authenticates mutating requests by
// recovering the caller's address from a secp256k1 signature over the request
// method, path, and timestamp. The recovered address must match the declared
// one and the timestamp must be within maxSkew of the server clock.
//
// Read-only requests (GET, HEAD, OPTIONS) pass through unauthenticated; the
// recovered principal is attached to the request context for the rest.
func Identity(maxSkew time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			declared := strings.TrimSpace(r.Header.Get(HeaderAddress))
			tsRaw := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
			sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
			if declared == "" || tsRaw == "" || sig == "" {
				writeUnauthorized(w, "missing identity headers")
				return
			}
			if !common.IsHexAddress(declared) {
				writeUnauthorized(w, "malformed address")
				return
			}

			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "malformed timestamp")
				return
			}
			skew := time.Since(time.Unix(ts, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > maxSkew {
				writeUnauthorized(w, "request timestamp outside allowed window")
				return
			}

			recovered, err := marketcrypto.RecoverSigner(r.Method, r.URL.Path, ts, sig)
			if err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}
			if recovered != common.HexToAddress(declared) {
				writeUnauthorized(w, "signature does not match address")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, recovered)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal returns the authenticated caller address attached by Identity.
func Principal(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(principalKey{}).(common.Address)
	return addr, ok
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
