package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
)

type MemorySessionRepository struct {
	sessions map[domain.PeerID]*domain.MeetingSession
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.PeerID]*domain.MeetingSession),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.MeetingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.PeerID]; exists {
		return fmt.Errorf("session already exists: %s", session.PeerID)
	}

	stored := *session
	r.sessions[session.PeerID] = &stored
	return nil
}

func (r *MemorySessionRepository) GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.MeetingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[peerID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	out := *session
	return &out, nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, peerID domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[peerID]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(r.sessions, peerID)
	return nil
}

func (r *MemorySessionRepository) Touch(ctx context.Context, peerID domain.PeerID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[peerID]
	if !exists {
		return domain.ErrSessionNotFound
	}

	session.LastSeenAt = at
	return nil
}

func (r *MemorySessionRepository) ListByMeeting(ctx context.Context, meetingID domain.MeetingID) ([]*domain.MeetingSession, error) {
	return r.filter(func(s *domain.MeetingSession) bool { return s.MeetingID == meetingID }), nil
}

func (r *MemorySessionRepository) ListIdle(ctx context.Context, before time.Time) ([]*domain.MeetingSession, error) {
	return r.filter(func(s *domain.MeetingSession) bool { return s.LastSeenAt.Before(before) }), nil
}

// filter returns copies of matching sessions ordered by creation time.
func (r *MemorySessionRepository) filter(match func(*domain.MeetingSession) bool) []*domain.MeetingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.MeetingSession
	for _, s := range r.sessions {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PeerID < out[j].PeerID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
