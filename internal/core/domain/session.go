package domain

import "time"

// PeerID is an ephemeral, session-scoped identifier. It is never reused once
// its session ends.
type PeerID string

type MeetingSession struct {
	PeerID     PeerID
	MeetingID  MeetingID
	UserID     UserID
	CreatedAt  time.Time
	LastSeenAt time.Time
}
