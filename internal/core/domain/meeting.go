package domain

import "time"

type MeetingID int64

type Meeting struct {
	ID           MeetingID
	Title        string
	CreatorID    UserID
	Participants []Participant
	CreatedAt    time.Time
}

type Participant struct {
	UserID UserID
	Access ParticipantAccess
}

// HasMember reports whether the user is the creator or a listed participant.
func (m *Meeting) HasMember(userID UserID) bool {
	if userID == 0 {
		return false
	}
	if m.CreatorID == userID {
		return true
	}
	for _, p := range m.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// CanWrite reports whether the user may post to the meeting: the creator
// and participants holding write access.
func (m *Meeting) CanWrite(userID UserID) bool {
	if userID == 0 {
		return false
	}
	if m.CreatorID == userID {
		return true
	}
	for _, p := range m.Participants {
		if p.UserID == userID && p.Access == AccessWrite {
			return true
		}
	}
	return false
}

type MeetingMessage struct {
	ID        int64
	MeetingID MeetingID
	SenderID  UserID
	Body      string
	CreatedAt time.Time
}
