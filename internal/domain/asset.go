package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InterfaceID identifies a capability an asset ledger advertises, using the
// standard 4-byte introspection identifiers.
type InterfaceID string

const (
	// InterfaceUniqueAsset marks a ledger holding one unit per token id with
	// ownership queryable by token id (ERC-721 semantics).
	InterfaceUniqueAsset InterfaceID = "0x80ac58cd"

	// InterfaceMultiAsset marks a ledger holding per-(owner, token id)
	// balances (ERC-1155 semantics).
	InterfaceMultiAsset InterfaceID = "0xd9b67a26"
)

// Asset is a registered asset ledger the marketplace can custody tokens
// through. Which variant it implements is discovered through its advertised
// interface set, never assumed from the address.
type Asset struct {
	Address    common.Address `json:"address"`
	Symbol     string         `json:"symbol"`
	Interfaces []InterfaceID  `json:"interfaces"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Supports reports whether the asset ledger advertises the given capability.
func (a Asset) Supports(id InterfaceID) bool {
	for _, iface := range a.Interfaces {
		if iface == id {
			return true
		}
	}
	return false
}
