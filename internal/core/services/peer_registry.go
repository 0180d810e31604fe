package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	apperrors "meetrelay/pkg/errors"
	"meetrelay/pkg/utils"

	"go.uber.org/zap"
)

// PeerRegistryOption configures a peer registry.
type PeerRegistryOption func(*peerRegistry)

// WithPeerIDGenerator replaces the UUID generator.
func WithPeerIDGenerator(gen func() domain.PeerID) PeerRegistryOption {
	return func(r *peerRegistry) { r.newPeerID = gen }
}

// WithRegistryClock replaces time.Now.
func WithRegistryClock(now func() time.Time) PeerRegistryOption {
	return func(r *peerRegistry) { r.now = now }
}

// WithMultipleSessions controls whether a user may hold several live
// sessions in one meeting. Allowed by default.
func WithMultipleSessions(allow bool) PeerRegistryOption {
	return func(r *peerRegistry) { r.allowMultiple = allow }
}

type peerRegistry struct {
	sessions      ports.SessionRepository
	logger        *zap.SugaredLogger
	newPeerID     func() domain.PeerID
	now           func() time.Time
	allowMultiple bool
}

func NewPeerRegistry(sessions ports.SessionRepository, logger *zap.SugaredLogger, opts ...PeerRegistryOption) ports.PeerRegistry {
	r := &peerRegistry{
		sessions:      sessions,
		logger:        logger,
		newPeerID:     func() domain.PeerID { return domain.PeerID(utils.GeneratePeerID()) },
		now:           time.Now,
		allowMultiple: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *peerRegistry) Register(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (domain.PeerID, error) {
	if meetingID <= 0 || userID <= 0 {
		return "", apperrors.NewInvalidInputError("meeting id and user id are required")
	}

	// Two concurrent registrations may both pass this check.
	if !r.allowMultiple {
		live, err := r.sessions.ListByMeeting(ctx, meetingID)
		if err != nil {
			return "", fmt.Errorf("failed to list sessions: %w", err)
		}
		for _, s := range live {
			if s.UserID == userID {
				return "", apperrors.NewDuplicateSessionError(domain.ErrDuplicateSession).
					WithContext("peer_id", string(s.PeerID))
			}
		}
	}

	now := r.now()
	session := &domain.MeetingSession{
		PeerID:     r.newPeerID(),
		MeetingID:  meetingID,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Debugw("peer registered",
		"peer_id", session.PeerID,
		"meeting_id", meetingID,
		"user_id", userID,
	)
	return session.PeerID, nil
}

func (r *peerRegistry) Resolve(ctx context.Context, peerID domain.PeerID) (domain.MeetingID, domain.UserID, error) {
	session, err := r.lookup(ctx, peerID)
	if err != nil {
		return 0, 0, err
	}
	return session.MeetingID, session.UserID, nil
}

// OwnedBy is false on any lookup failure.
func (r *peerRegistry) OwnedBy(ctx context.Context, peerID domain.PeerID, userID domain.UserID) bool {
	if userID <= 0 {
		return false
	}
	session, err := r.lookup(ctx, peerID)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			r.logger.Warnw("peer ownership lookup failed", "peer_id", peerID, "error", err)
		}
		return false
	}
	return session.UserID == userID
}

func (r *peerRegistry) Release(ctx context.Context, peerID domain.PeerID) error {
	if err := r.sessions.Delete(ctx, peerID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return apperrors.WrapNotFoundError(err, "session").WithContext("peer_id", string(peerID))
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}

	r.logger.Debugw("peer released", "peer_id", peerID)
	return nil
}

func (r *peerRegistry) Touch(ctx context.Context, peerID domain.PeerID) error {
	if err := r.sessions.Touch(ctx, peerID, r.now()); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return apperrors.WrapNotFoundError(err, "session").WithContext("peer_id", string(peerID))
		}
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *peerRegistry) lookup(ctx context.Context, peerID domain.PeerID) (*domain.MeetingSession, error) {
	if peerID == "" {
		return nil, apperrors.WrapNotFoundError(domain.ErrSessionNotFound, "session")
	}
	session, err := r.sessions.GetByPeer(ctx, peerID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, apperrors.WrapNotFoundError(err, "session").WithContext("peer_id", string(peerID))
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}
