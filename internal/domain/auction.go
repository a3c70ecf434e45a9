package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Auction is a time-boxed competitive-bidding sale of a fixed quantity of one
// token. HighestBidder is the zero address until the first bid is accepted.
// An auction terminates through exactly one of cancellation (only before any
// bid) or finishing (only after EndTime).
type Auction struct {
	ID            int64          `json:"id"`
	Seller        common.Address `json:"seller"`
	Asset         common.Address `json:"asset"`
	TokenID       int64          `json:"token_id"`
	Amount        int64          `json:"amount"`
	MinPrice      int64          `json:"min_price"`
	EndTime       time.Time      `json:"end_time"`
	HighestBidder common.Address `json:"highest_bidder"`
	HighestBid    int64          `json:"highest_bid"`
	Active        bool           `json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasBid reports whether any bid has been accepted on the auction.
func (a Auction) HasBid() bool {
	return a.HighestBidder != (common.Address{})
}

// Ended reports whether the auction deadline has passed at the given time.
func (a Auction) Ended(now time.Time) bool {
	return !now.Before(a.EndTime)
}
