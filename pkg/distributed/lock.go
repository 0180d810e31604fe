package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lease expired or was taken
// over by another holder.
var ErrNotHeld = errors.New("lock was not held by this holder")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// LockManager hands out Redis leases under a common key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

// Lease is a held lock. It is renewed at half its TTL until released.
type Lease struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// TryAcquire takes the lock without waiting. A nil lease with a nil error
// means someone else holds it.
func (m *LockManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be > 0")
	}
	value, err := gonanoid.Nanoid()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock value: %w", err)
	}

	fullKey := m.prefix + key
	acquired, err := m.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !acquired {
		return nil, nil
	}

	l := &Lease{
		client: m.client,
		key:    fullKey,
		value:  value,
		ttl:    ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.renew()
	return l, nil
}

// WithLock runs fn while holding key and reports whether it ran.
func (m *LockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lease, err := m.TryAcquire(ctx, key, ttl)
	if err != nil || lease == nil {
		return false, err
	}

	fnErr := fn(ctx)
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrNotHeld) {
		return true, errors.Join(fnErr, err)
	}
	return true, fnErr
}

// Release stops renewal and deletes the key if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	close(l.stop)
	<-l.done

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lease) renew() {
	defer close(l.done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil || n == 0 {
				return
			}
		case <-l.stop:
			return
		}
	}
}
