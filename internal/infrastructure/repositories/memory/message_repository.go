package memory

import (
	"context"
	"sync"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
)

type MemoryMessageRepository struct {
	messages map[domain.MeetingID][]domain.MeetingMessage
	nextID   int64
	mu       sync.RWMutex
}

func NewMemoryMessageRepository() ports.MessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[domain.MeetingID][]domain.MeetingMessage),
	}
}

// Create appends the message and assigns its ID.
func (r *MemoryMessageRepository) Create(ctx context.Context, msg *domain.MeetingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg.ID = r.nextID
	r.messages[msg.MeetingID] = append(r.messages[msg.MeetingID], *msg)
	return nil
}

// ListByMeeting returns up to limit most recent messages, oldest first.
func (r *MemoryMessageRepository) ListByMeeting(ctx context.Context, meetingID domain.MeetingID, limit int) ([]*domain.MeetingMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[meetingID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}

	out := make([]*domain.MeetingMessage, 0, len(all)-start)
	for i := start; i < len(all); i++ {
		msg := all[i]
		out = append(out, &msg)
	}
	return out, nil
}
