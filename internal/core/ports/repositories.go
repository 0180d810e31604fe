package ports

import (
	"context"
	"time"

	"meetrelay/internal/core/domain"
)

// MeetingRepository reads meetings and their participant sets. Lookups
// return domain.ErrMeetingNotFound for unknown ids.
type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	Participants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error)
	AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error
	RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error
	Ping(ctx context.Context) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// SessionRepository stores live meeting sessions keyed by peer id. Lookups
// and deletes return domain.ErrSessionNotFound for unknown peers.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.MeetingSession) error
	GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.MeetingSession, error)
	Delete(ctx context.Context, peerID domain.PeerID) error
	Touch(ctx context.Context, peerID domain.PeerID, at time.Time) error
	ListByMeeting(ctx context.Context, meetingID domain.MeetingID) ([]*domain.MeetingSession, error)
	ListIdle(ctx context.Context, before time.Time) ([]*domain.MeetingSession, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.MeetingMessage) error
	ListByMeeting(ctx context.Context, meetingID domain.MeetingID, limit int) ([]*domain.MeetingMessage, error)
}

// Store bundles the repositories backing the relay.
type Store struct {
	Meetings MeetingRepository
	Users    UserRepository
	Sessions SessionRepository
	Messages MessageRepository
}
