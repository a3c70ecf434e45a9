package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mintmarket/marketd/internal/domain"
)

const listingTTL = 5 * time.Minute

// ListingCache implements domain.ListingCache using JSON-serialized listings
// with a short TTL. Services invalidate entries on every mutation, so the TTL
// only bounds staleness after missed invalidations.
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingKey(id int64) string {
	return "listing:" + strconv.FormatInt(id, 10)
}

// Set stores a listing in the cache with a 5-minute TTL.
func (lc *ListingCache) Set(ctx context.Context, l domain.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %d: %w", l.ID, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(l.ID), data, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing %d: %w", l.ID, err)
	}
	return nil
}

// Get retrieves a listing by id from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (lc *ListingCache) Get(ctx context.Context, id int64) (domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %d: %w", id, err)
	}

	var l domain.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %d: %w", id, err)
	}
	return l, nil
}

// Invalidate removes a listing from the cache.
func (lc *ListingCache) Invalidate(ctx context.Context, id int64) error {
	if err := lc.rdb.Del(ctx, listingKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
