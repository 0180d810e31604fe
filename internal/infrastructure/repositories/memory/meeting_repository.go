package memory

import (
	"context"
	"fmt"
	"sync"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
)

type MemoryMeetingRepository struct {
	meetings map[domain.MeetingID]*domain.Meeting
	nextID   domain.MeetingID
	mu       sync.RWMutex
}

func NewMemoryMeetingRepository() ports.MeetingRepository {
	return &MemoryMeetingRepository{
		meetings: make(map[domain.MeetingID]*domain.Meeting),
	}
}

// Create stores the meeting. A zero ID is assigned from an internal sequence.
func (r *MemoryMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if meeting.ID == 0 {
		r.nextID++
		for r.meetings[r.nextID] != nil {
			r.nextID++
		}
		meeting.ID = r.nextID
	}
	if _, exists := r.meetings[meeting.ID]; exists {
		return fmt.Errorf("meeting already exists: %d", meeting.ID)
	}

	r.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

func (r *MemoryMeetingRepository) GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meeting, exists := r.meetings[id]
	if !exists {
		return nil, domain.ErrMeetingNotFound
	}
	return cloneMeeting(meeting), nil
}

func (r *MemoryMeetingRepository) Participants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	meeting, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return meeting.Participants, nil
}

func (r *MemoryMeetingRepository) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meeting, exists := r.meetings[id]
	if !exists {
		return domain.ErrMeetingNotFound
	}
	for i := range meeting.Participants {
		if meeting.Participants[i].UserID == p.UserID {
			meeting.Participants[i].Access = p.Access
			return nil
		}
	}
	meeting.Participants = append(meeting.Participants, p)
	return nil
}

func (r *MemoryMeetingRepository) RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meeting, exists := r.meetings[id]
	if !exists {
		return domain.ErrMeetingNotFound
	}
	kept := meeting.Participants[:0]
	for _, p := range meeting.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	meeting.Participants = kept
	return nil
}

func (r *MemoryMeetingRepository) Ping(ctx context.Context) error {
	return nil
}

func cloneMeeting(m *domain.Meeting) *domain.Meeting {
	out := *m
	out.Participants = append([]domain.Participant(nil), m.Participants...)
	return &out
}
