package broadcast

import (
	"context"
	"time"

	"meetrelay/internal/core/events"
	"meetrelay/internal/core/ports"
	"meetrelay/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// ReliableBroadcaster bounds every publish with a timeout and stops calling
// a failing transport until its breaker cools down.
type ReliableBroadcaster struct {
	next    ports.Broadcaster
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

func NewReliableBroadcaster(next ports.Broadcaster, timeout time.Duration, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *ReliableBroadcaster {
	breaker := circuitbreaker.New(cfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("broadcast circuit breaker changed state",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return &ReliableBroadcaster{
		next:    next,
		timeout: timeout,
		breaker: breaker,
	}
}

func (b *ReliableBroadcaster) Publish(ctx context.Context, env events.Envelope) error {
	return b.breaker.Execute(func() error {
		if b.timeout <= 0 {
			return b.next.Publish(ctx, env)
		}
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.next.Publish(ctx, env)
	})
}

// State exposes the breaker state for health reporting.
func (b *ReliableBroadcaster) State() circuitbreaker.State {
	return b.breaker.State()
}
