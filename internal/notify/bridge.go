package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mintmarket/marketd/internal/domain"
)

// Bridge subscribes to the marketplace signal bus and turns published events
// into operator notifications.
type Bridge struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge between the signal bus and the notifier.
func NewBridge(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run consumes the listing, auction, and escrow channels until the context is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, channel := range []string{
		domain.ChannelListings,
		domain.ChannelAuctions,
		domain.ChannelEscrow,
	} {
		ch := channel
		g.Go(func() error {
			return b.consume(ctx, ch)
		})
	}

	return g.Wait()
}

func (b *Bridge) consume(ctx context.Context, channel string) error {
	msgs, err := b.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handle(ctx, channel, payload)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, channel string, payload []byte) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		b.logger.WarnContext(ctx, "malformed event payload",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	event, _ := fields["event"].(string)
	if event == "" {
		return
	}

	title, message := formatEvent(event, fields)
	if err := b.notifier.Notify(ctx, event, title, message); err != nil {
		b.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// formatEvent renders a bus event as a short human-readable notification.
func formatEvent(event string, fields map[string]any) (title, message string) {
	switch event {
	case "listing_created":
		return "New listing", fmt.Sprintf("Listing %v by %v", fields["listing_id"], fields["seller"])
	case "listing_sold":
		return "Listing sold", fmt.Sprintf("Listing %v: %v units to %v", fields["listing_id"], fields["amount"], fields["buyer"])
	case "listing_cancelled":
		return "Listing cancelled", fmt.Sprintf("Listing %v, %v units remaining", fields["listing_id"], fields["remaining"])
	case "auction_created":
		return "New auction", fmt.Sprintf("Auction %v by %v", fields["auction_id"], fields["seller"])
	case "bid_placed":
		return "Bid placed", fmt.Sprintf("Auction %v: %v bid %v", fields["auction_id"], fields["bidder"], fields["bid"])
	case "auction_cancelled":
		return "Auction cancelled", fmt.Sprintf("Auction %v", fields["auction_id"])
	case "auction_finished":
		return "Auction finished", fmt.Sprintf("Auction %v: winner %v at %v", fields["auction_id"], fields["winner"], fields["bid"])
	case "escrow_withdrawn":
		return "Withdrawal", fmt.Sprintf("%v withdrew %v", fields["principal"], fields["amount"])
	default:
		return event, string(mustCompact(fields))
	}
}

func mustCompact(fields map[string]any) []byte {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return data
}
