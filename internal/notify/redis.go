package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBridge publishes events on a Redis channel and relays that channel
// into a local Hub, so observers on every instance see every event.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *slog.Logger
}

// NewRedisBridge wires hub to channel on rdb.
func NewRedisBridge(rdb *redis.Client, channel string, hub *Hub, log *slog.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, channel: channel, hub: hub, log: log}
}

// Broadcast publishes e. Local observers receive it through Run.
func (b *RedisBridge) Broadcast(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local observer on the underlying hub.
func (b *RedisBridge) Subscribe() (<-chan Event, func()) {
	return b.hub.Subscribe()
}

// Run relays channel messages into the hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warn("event_decode_failed", slog.String("channel", b.channel), slog.Any("err", err))
				continue
			}
			b.hub.deliver(e)
		}
	}
}
