// Package crypto implements the signature scheme that identifies marketplace
// callers. A request carries the caller's address, a Unix timestamp, and a
// secp256k1 signature over the request material; the server recovers the
// signing address and uses it as the caller's principal.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// requestDigest hashes the request material with the EIP-191 personal-sign
// prefix so signatures cannot be replayed against other schemes.
func requestDigest(method, path string, unixTS int64) []byte {
	message := strings.Join([]string{
		"marketd",
		method,
		path,
		strconv.FormatInt(unixTS, 10),
	}, "|")

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}

// Signer signs request material with a secp256k1 private key. It is used by
// the mint mode and by clients of the HTTP API.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest signs the request material and returns a hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) SignRequest(method, path string, unixTS int64) (string, error) {
	sig, err := ethcrypto.Sign(requestDigest(method, path, unixTS), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign request: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner recovers the address that signed the request material.
// The signature's recovery byte may be raw (0/1) or Ethereum style (27/28).
func RecoverSigner(method, path string, unixTS int64, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	pub, err := ethcrypto.SigToPub(requestDigest(method, path, unixTS), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
