package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Listing is a standing offer to sell a fixed quantity of one token at a
// fixed unit price. While active the marketplace holds custody of exactly
// Remaining units on the listing's behalf; once Remaining reaches zero the
// listing is deactivated and never reactivated.
type Listing struct {
	ID           int64          `json:"id"`
	Seller       common.Address `json:"seller"`
	Asset        common.Address `json:"asset"`
	TokenID      int64          `json:"token_id"`
	PricePerUnit int64          `json:"price_per_unit"`
	Remaining    int64          `json:"remaining"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
