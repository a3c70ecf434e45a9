package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector key; never used outside tests.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecoverRoundTrip(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	sig, err := signer.SignRequest("POST", "/api/listings", ts)
	require.NoError(t, err)

	recovered, err := RecoverSigner("POST", "/api/listings", ts, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestRecoverRejectsTamperedMaterial(t *testing.T) {
	signer, err := NewSigner("0x" + testKey)
	require.NoError(t, err)

	ts := time.Now().Unix()
	sig, err := signer.SignRequest("POST", "/api/listings", ts)
	require.NoError(t, err)

	t.Run("different path recovers a different address", func(t *testing.T) {
		recovered, err := RecoverSigner("POST", "/api/auctions", ts, sig)
		if err == nil {
			assert.NotEqual(t, signer.Address(), recovered)
		}
	})

	t.Run("different timestamp recovers a different address", func(t *testing.T) {
		recovered, err := RecoverSigner("POST", "/api/listings", ts+1, sig)
		if err == nil {
			assert.NotEqual(t, signer.Address(), recovered)
		}
	})

	t.Run("truncated signature rejected", func(t *testing.T) {
		_, err := RecoverSigner("POST", "/api/listings", ts, sig[:len(sig)-4])
		assert.Error(t, err)
	})

	t.Run("non-hex signature rejected", func(t *testing.T) {
		_, err := RecoverSigner("POST", "/api/listings", ts, "0xzz")
		assert.Error(t, err)
	})
}

func TestRecoverAcceptsEthereumStyleRecoveryByte(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	ts := time.Now().Unix()
	sig, err := signer.SignRequest("DELETE", "/api/roles", ts)
	require.NoError(t, err)

	// Shift v from 0/1 to 27/28 as Ethereum wallets emit it.
	raw := []byte(sig)
	shifted := make([]byte, len(raw))
	copy(shifted, raw)
	last := shifted[len(shifted)-1]
	switch last {
	case '0':
		// v=0x00 -> 0x1b
		shifted[len(shifted)-2] = '1'
		shifted[len(shifted)-1] = 'b'
	case '1':
		// v=0x01 -> 0x1c
		shifted[len(shifted)-2] = '1'
		shifted[len(shifted)-1] = 'c'
	}

	recovered, err := RecoverSigner("DELETE", "/api/roles", ts, string(shifted))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("not-a-key")
	assert.Error(t, err)
}
