package memory

import "meetrelay/internal/core/ports"

// NewStore returns an empty in-memory store.
func NewStore() ports.Store {
	return ports.Store{
		Meetings: NewMemoryMeetingRepository(),
		Users:    NewMemoryUserRepository(),
		Sessions: NewMemorySessionRepository(),
		Messages: NewMemoryMessageRepository(),
	}
}
