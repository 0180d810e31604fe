package broadcast

import (
	"context"
	"fmt"

	"meetrelay/internal/core/events"
)

// LocalBroadcaster delivers straight into an in-process hub.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := NewFrame(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", env.Event, err)
	}
	b.hub.Dispatch(frame)
	return nil
}
