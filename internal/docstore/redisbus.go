package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "maint:changes"

type changeMessage struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
}

// RedisBus carries change signals over Redis pub/sub. Messages are tagged
// with a per-instance id so a process ignores its own publications.
type RedisBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRedisBus creates a bus on client. The client is closed by Close.
func NewRedisBus(client *redis.Client, channel string, logger *zap.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Origin returns the instance id attached to published messages.
func (b *RedisBus) Origin() string { return b.origin }

// Ready is closed once Listen holds a confirmed subscription.
func (b *RedisBus) Ready() <-chan struct{} { return b.ready }

func (b *RedisBus) Publish(ctx context.Context, collection string) error {
	payload, err := json.Marshal(changeMessage{Origin: b.origin, Collection: collection})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *RedisBus) Listen(ctx context.Context, onChange func(collection string)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("change bus listening", zap.String("channel", b.channel), zap.String("origin", b.origin))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("malformed change message", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			if m.Origin == b.origin || m.Collection == "" {
				continue
			}
			onChange(m.Collection)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
