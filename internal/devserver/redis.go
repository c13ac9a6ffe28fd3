package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventChannel is the redis pub/sub channel shared by every dev server process.
const EventChannel = "interview-room:events"

// RedisBroker publishes events through redis so that sockets attached to any
// dev server process see them. Delivery to local sockets goes through a Hub.
type RedisBroker struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	hub    *Hub
	logger *slog.Logger
	done   chan struct{}
}

func NewRedisBroker(ctx context.Context, addr, password string, logger *slog.Logger) (*RedisBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := rdb.Subscribe(ctx, EventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("subscribe %s: %w", EventChannel, err)
	}

	b := &RedisBroker{
		rdb:    rdb,
		pubsub: pubsub,
		hub:    NewHub(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		b.relay(pubsub.Channel())
	}()
	return b, nil
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(interviewID int64) (<-chan Event, func()) {
	return b.hub.Subscribe(interviewID)
}

func (b *RedisBroker) relay(messages <-chan *redis.Message) {
	for msg := range messages {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn("redis broker: dropping malformed event", "error", err)
			continue
		}
		b.hub.Broadcast(ev)
	}
}

func (b *RedisBroker) Close() error {
	err := b.pubsub.Close()
	<-b.done
	if cerr := b.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
