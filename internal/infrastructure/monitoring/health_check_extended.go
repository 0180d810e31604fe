package monitoring

import (
	"context"
	"fmt"
	"time"

	"meetrelay/internal/core/ports"
	"meetrelay/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddStoreCheck pings the meeting store.
func (h *HealthChecker) AddStoreCheck(meetings ports.MeetingRepository, timeout time.Duration) {
	h.AddCheck("store", func(ctx context.Context) error {
		return meetings.Ping(ctx)
	}, timeout)
}

// AddBreakerCheck reports unhealthy while the broadcaster's breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State) {
	h.AddCheck(name, func(ctx context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker is %s", s)
		}
		return nil
	}, 0)
}
