package domain

import (
	"context"
	"time"
)

// LockManager provides mutual exclusion around a named resource. Acquire
// returns an unlock function on success, or ErrLockHeld if another holder
// owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding-window request limit per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus carries marketplace events between services and consumers such
// as the websocket hub and the notifier.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Event channels published on the signal bus.
const (
	ChannelListings = "listings"
	ChannelAuctions = "auctions"
	ChannelEscrow   = "escrow"
)

// ListingCache is a read-through cache for listings. Get returns ErrNotFound
// on a miss.
type ListingCache interface {
	Set(ctx context.Context, l Listing) error
	Get(ctx context.Context, id int64) (Listing, error)
	Invalidate(ctx context.Context, id int64) error
}
