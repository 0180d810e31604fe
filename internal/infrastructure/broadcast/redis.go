package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"meetrelay/internal/core/events"
	"meetrelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroadcaster publishes frames on Redis pub/sub so every relay instance
// sharing the server sees them. Run feeds the frames back into the local hub,
// including the ones this instance published.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
	prefix string
	policy retry.Policy
	logger *zap.SugaredLogger
}

func NewRedisBroadcaster(client *redis.Client, hub *Hub, prefix string, policy retry.Policy, logger *zap.SugaredLogger) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: client,
		hub:    hub,
		prefix: prefix,
		policy: policy,
		logger: logger,
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, env events.Envelope) error {
	frame, err := NewFrame(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", env.Event, err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	topic := b.prefix + env.Channel
	err = retry.Do(ctx, b.policy, func(ctx context.Context) error {
		return b.client.Publish(ctx, topic, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	b.logger.Debugw("published frame",
		"channel", env.Channel,
		"event", env.Event,
	)
	return nil
}

// Run pattern-subscribes to every prefixed topic and dispatches incoming
// frames into the hub until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			b.handle(msg)
		}
	}
}

func (b *RedisBroadcaster) handle(msg *redis.Message) {
	var frame Frame
	if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
		b.logger.Warnw("failed to unmarshal frame",
			"topic", msg.Channel,
			"error", err,
		)
		return
	}

	channel := strings.TrimPrefix(msg.Channel, b.prefix)
	if frame.Channel != channel {
		b.logger.Warnw("frame channel does not match topic",
			"topic", msg.Channel,
			"channel", frame.Channel,
		)
		return
	}
	b.hub.Dispatch(frame)
}
