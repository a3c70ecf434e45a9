package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	marketcrypto "github.com/mintmarket/marketd/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func identityProbe(t *testing.T) (http.Handler, *common.Address) {
	t.Helper()

	var seen common.Address
	h := Identity(5 * time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := Principal(r.Context()); ok {
			seen = p
		}
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func signedRequest(t *testing.T, signer *marketcrypto.Signer, method, path string, ts int64) *http.Request {
	t.Helper()

	sig, err := signer.SignRequest(method, path, ts)
	require.NoError(t, err)

	r := httptest.NewRequest(method, path, nil)
	r.Header.Set(HeaderAddress, signer.Address().Hex())
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	r.Header.Set(HeaderSignature, sig)
	return r
}

func TestIdentityAcceptsSignedMutation(t *testing.T) {
	signer, err := marketcrypto.NewSigner(testKey)
	require.NoError(t, err)

	h, seen := identityProbe(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, signer, "POST", "/api/listings", time.Now().Unix()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, signer.Address(), *seen)
}

func TestIdentityPassesReadsThrough(t *testing.T) {
	h, seen := identityProbe(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/listings", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.Address{}, *seen)
}

func TestIdentityRejections(t *testing.T) {
	signer, err := marketcrypto.NewSigner(testKey)
	require.NoError(t, err)

	t.Run("missing headers", func(t *testing.T) {
		h, _ := identityProbe(t)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/api/listings", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		h, _ := identityProbe(t)
		w := httptest.NewRecorder()
		ts := time.Now().Add(-time.Hour).Unix()
		h.ServeHTTP(w, signedRequest(t, signer, "POST", "/api/listings", ts))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signature over a different path", func(t *testing.T) {
		h, _ := identityProbe(t)
		ts := time.Now().Unix()
		r := signedRequest(t, signer, "POST", "/api/listings", ts)
		forged := httptest.NewRequest("POST", "/api/auctions", nil)
		forged.Header = r.Header
		w := httptest.NewRecorder()
		h.ServeHTTP(w, forged)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("declared address does not match signer", func(t *testing.T) {
		h, _ := identityProbe(t)
		ts := time.Now().Unix()
		r := signedRequest(t, signer, "POST", "/api/listings", ts)
		r.Header.Set(HeaderAddress, "0x0000000000000000000000000000000000001234")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed address", func(t *testing.T) {
		h, _ := identityProbe(t)
		ts := time.Now().Unix()
		r := signedRequest(t, signer, "POST", "/api/listings", ts)
		r.Header.Set(HeaderAddress, "not-an-address")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage signature", func(t *testing.T) {
		h, _ := identityProbe(t)
		r := httptest.NewRequest("POST", "/api/listings", nil)
		r.Header.Set(HeaderAddress, signer.Address().Hex())
		r.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
		r.Header.Set(HeaderSignature, "0xdeadbeef")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
