package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintmarket/marketd/internal/domain"
)

func TestLockManagerExclusion(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	release, err := lm.Acquire(ctx, "listing:1", time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "listing:1", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is independent.
	other, err := lm.Acquire(ctx, "listing:2", time.Second)
	require.NoError(t, err)
	other()

	release()
	release() // double release is a no-op

	again, err := lm.Acquire(ctx, "listing:1", time.Second)
	require.NoError(t, err)
	again()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "bids:abc", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := rl.Allow(ctx, "bids:abc", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys keep their own window.
	ok, err = rl.Allow(ctx, "bids:def", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Entries age out of a short window.
	ok, err = rl.Allow(ctx, "bids:fast", 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	ok, err = rl.Allow(ctx, "bids:fast", 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, domain.ChannelListings)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelListings, []byte(`{"event":"listing_created"}`)))

	select {
	case msg := <-sub:
		assert.JSONEq(t, `{"event":"listing_created"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	// Publishing to a channel nobody subscribed to is not an error.
	require.NoError(t, bus.Publish(ctx, domain.ChannelAuctions, []byte("{}")))

	// Cancelling the subscriber context closes the channel.
	cancel()
	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}
