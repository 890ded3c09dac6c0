package notifications

import (
	"context"
	"runtime/debug"
	"strings"

	"inkwell/internal/middleware"
	"inkwell/internal/observability"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "events:"

// EventChannel derives the Redis channel name for an event type.
func EventChannel(eventType string) string {
	return channelPrefix + eventType
}

// Notifier publishes events into Redis and relays subscribed events to a
// local Hub. Without Redis it hands events to the hub directly, which is
// correct for a single instance only.
type Notifier struct {
	rdb *redis.Client
	hub *Hub
}

// NewNotifier creates a Notifier. Both arguments may be nil.
func NewNotifier(rdb *redis.Client, hub *Hub) *Notifier {
	return &Notifier{rdb: rdb, hub: hub}
}

// Publish sends ev to every instance's clients.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}
	observability.WebSocketEventsTotal.WithLabelValues(ev.Type).Inc()

	if n.rdb != nil {
		return n.rdb.Publish(ctx, EventChannel(ev.Type), payload).Err()
	}
	if n.hub != nil {
		n.hub.BroadcastAll(payload)
	}
	return nil
}

// Start subscribes to all event channels and forwards each message to the
// hub until ctx is done. It is a no-op without Redis.
func (n *Notifier) Start(ctx context.Context) error {
	if n.rdb == nil || n.hub == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription to be confirmed so no early publish is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Channel, channelPrefix) {
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in event subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					n.hub.BroadcastAll([]byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
