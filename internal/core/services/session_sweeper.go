package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	apperrors "meetrelay/pkg/errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepLockKey = "sweeper"

// SweepGuard runs fn only while holding a lock shared by every relay
// instance. It reports false when another instance holds the lock.
type SweepGuard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// SessionSweeper evicts sessions that stopped sending heartbeats.
type SessionSweeper struct {
	sessions    ports.SessionRepository
	relay       ports.SignalingRelay
	idleTimeout time.Duration
	logger      *zap.SugaredLogger
	now         func() time.Time
	guard       SweepGuard

	cron *cron.Cron
}

// NewSessionSweeper schedules sweeps with a cron spec such as "@every 1m".
func NewSessionSweeper(
	sessions ports.SessionRepository,
	relay ports.SignalingRelay,
	idleTimeout time.Duration,
	schedule string,
	logger *zap.SugaredLogger,
) (*SessionSweeper, error) {
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be > 0")
	}

	s := &SessionSweeper{
		sessions:    sessions,
		relay:       relay,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// SetGuard makes scheduled sweeps take a shared lock first. Needed when
// several instances share one session store.
func (s *SessionSweeper) SetGuard(g SweepGuard) {
	s.guard = g
}

func (s *SessionSweeper) runScheduled() {
	ctx := context.Background()
	sweep := func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	}

	if s.guard == nil {
		if err := sweep(ctx); err != nil {
			s.logger.Warnw("session sweep failed", "error", err)
		}
		return
	}

	ran, err := s.guard.WithLock(ctx, sweepLockKey, s.idleTimeout, sweep)
	if err != nil {
		s.logger.Warnw("session sweep failed", "error", err)
		return
	}
	if !ran {
		s.logger.Debug("sweep skipped, another instance holds the lock")
	}
}

func (s *SessionSweeper) Start() {
	s.cron.Start()
	s.logger.Infow("session sweeper started", "idle_timeout", s.idleTimeout)
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *SessionSweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep evicts every session idle for longer than the timeout and returns
// how many were evicted. Sessions released concurrently are skipped.
func (s *SessionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.idleTimeout)
	idle, err := s.sessions.ListIdle(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	evicted := 0
	for _, session := range idle {
		if !s.stillIdle(ctx, session, cutoff) {
			continue
		}
		err := s.relay.Evict(ctx, session)
		switch {
		case err == nil:
			evicted++
		case apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		case apperrors.HasCode(err, apperrors.ErrCodeDeliveryFailed):
			// the session is gone even though nobody heard about it
			evicted++
		default:
			s.logger.Warnw("failed to evict idle session",
				"peer_id", session.PeerID,
				"meeting_id", session.MeetingID,
				"error", err,
			)
		}
	}

	if evicted > 0 {
		s.logger.Infow("evicted idle sessions", "count", evicted)
	}
	return evicted, nil
}

// stillIdle re-reads the session so a heartbeat that landed after the
// listing keeps it alive.
func (s *SessionSweeper) stillIdle(ctx context.Context, session *domain.MeetingSession, cutoff time.Time) bool {
	current, err := s.sessions.GetByPeer(ctx, session.PeerID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warnw("failed to re-read idle session",
				"peer_id", session.PeerID,
				"error", err,
			)
		}
		return false
	}
	return current.LastSeenAt.Before(cutoff)
}
