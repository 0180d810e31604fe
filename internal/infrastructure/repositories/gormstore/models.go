package gormstore

import (
	"time"

	"meetrelay/internal/core/domain"
)

type userModel struct {
	ID    int64 `gorm:"primaryKey;autoIncrement"`
	Name  string
	Email string `gorm:"index"`
}

func (userModel) TableName() string { return "users" }

func (m userModel) toDomain() *domain.User {
	return &domain.User{ID: domain.UserID(m.ID), Name: m.Name, Email: m.Email}
}

type meetingModel struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	Title        string
	CreatorID    int64 `gorm:"index"`
	CreatedAt    time.Time
	Participants []participantModel `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE"`
}

func (meetingModel) TableName() string { return "meetings" }

func (m meetingModel) toDomain() *domain.Meeting {
	out := &domain.Meeting{
		ID:        domain.MeetingID(m.ID),
		Title:     m.Title,
		CreatorID: domain.UserID(m.CreatorID),
		CreatedAt: m.CreatedAt,
	}
	for _, p := range m.Participants {
		out.Participants = append(out.Participants, p.toDomain())
	}
	return out
}

type participantModel struct {
	MeetingID int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"primaryKey"`
	Access    string `gorm:"size:16"`
}

func (participantModel) TableName() string { return "meeting_participants" }

func (p participantModel) toDomain() domain.Participant {
	return domain.Participant{UserID: domain.UserID(p.UserID), Access: domain.ParticipantAccess(p.Access)}
}

type sessionModel struct {
	PeerID     string `gorm:"primaryKey;size:64"`
	MeetingID  int64  `gorm:"index"`
	UserID     int64  `gorm:"index"`
	CreatedAt  time.Time
	LastSeenAt time.Time `gorm:"index"`
}

func (sessionModel) TableName() string { return "meeting_sessions" }

func (s sessionModel) toDomain() *domain.MeetingSession {
	return &domain.MeetingSession{
		PeerID:     domain.PeerID(s.PeerID),
		MeetingID:  domain.MeetingID(s.MeetingID),
		UserID:     domain.UserID(s.UserID),
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
}

type messageModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	MeetingID int64 `gorm:"index:idx_messages_meeting_id"`
	SenderID  int64
	Body      string
	CreatedAt time.Time
}

func (messageModel) TableName() string { return "meeting_messages" }

func (m messageModel) toDomain() *domain.MeetingMessage {
	return &domain.MeetingMessage{
		ID:        m.ID,
		MeetingID: domain.MeetingID(m.MeetingID),
		SenderID:  domain.UserID(m.SenderID),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func models() []any {
	return []any{&userModel{}, &meetingModel{}, &participantModel{}, &sessionModel{}, &messageModel{}}
}
