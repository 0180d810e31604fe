package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MeetingRepository struct {
	db *gorm.DB
}

func NewMeetingRepository(db *gorm.DB) ports.MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	m := meetingModel{
		ID:        int64(meeting.ID),
		Title:     meeting.Title,
		CreatorID: int64(meeting.CreatorID),
		CreatedAt: meeting.CreatedAt,
	}
	for _, p := range meeting.Participants {
		m.Participants = append(m.Participants, participantModel{UserID: int64(p.UserID), Access: string(p.Access)})
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	meeting.ID = domain.MeetingID(m.ID)
	meeting.CreatedAt = m.CreatedAt
	return nil
}

func (r *MeetingRepository) GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	var m meetingModel
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id") }).
		First(&m, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMeetingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting %d: %w", id, err)
	}
	return m.toDomain(), nil
}

func (r *MeetingRepository) Participants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	meeting, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return meeting.Participants, nil
}

// AddParticipant inserts the participant or updates their access.
func (r *MeetingRepository) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	row := participantModel{MeetingID: int64(id), UserID: int64(p.UserID), Access: string(p.Access)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meeting_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (r *MeetingRepository) RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND user_id = ?", int64(id), int64(userID)).
		Delete(&participantModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

func (r *MeetingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *MeetingRepository) exists(ctx context.Context, id domain.MeetingID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&meetingModel{}).Where("id = ?", int64(id)).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up meeting %d: %w", id, err)
	}
	if count == 0 {
		return domain.ErrMeetingNotFound
	}
	return nil
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) ports.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	m := userModel{ID: int64(user.ID), Name: user.Name, Email: user.Email}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = domain.UserID(m.ID)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var m userModel
	err := r.db.WithContext(ctx).First(&m, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return m.toDomain(), nil
}

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) ports.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.MeetingSession) error {
	m := sessionModel{
		PeerID:     string(session.PeerID),
		MeetingID:  int64(session.MeetingID),
		UserID:     int64(session.UserID),
		CreatedAt:  session.CreatedAt.UTC(),
		LastSeenAt: session.LastSeenAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.PeerID, err)
	}
	return nil
}

func (r *SessionRepository) GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.MeetingSession, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).Where("peer_id = ?", string(peerID)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", peerID, err)
	}
	return m.toDomain(), nil
}

func (r *SessionRepository) Delete(ctx context.Context, peerID domain.PeerID) error {
	res := r.db.WithContext(ctx).Where("peer_id = ?", string(peerID)).Delete(&sessionModel{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete session %s: %w", peerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, peerID domain.PeerID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("peer_id = ?", string(peerID)).
		Update("last_seen_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to touch session %s: %w", peerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ListByMeeting(ctx context.Context, meetingID domain.MeetingID) ([]*domain.MeetingSession, error) {
	return r.list(ctx, r.db.Where("meeting_id = ?", int64(meetingID)))
}

func (r *SessionRepository) ListIdle(ctx context.Context, before time.Time) ([]*domain.MeetingSession, error) {
	return r.list(ctx, r.db.Where("last_seen_at < ?", before.UTC()))
}

func (r *SessionRepository) list(ctx context.Context, q *gorm.DB) ([]*domain.MeetingSession, error) {
	var rows []sessionModel
	if err := q.WithContext(ctx).Order("created_at, peer_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]*domain.MeetingSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) ports.MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.MeetingMessage) error {
	m := messageModel{
		MeetingID: int64(msg.MeetingID),
		SenderID:  int64(msg.SenderID),
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	msg.ID = m.ID
	msg.CreatedAt = m.CreatedAt
	return nil
}

// ListByMeeting returns up to limit most recent messages, oldest first.
func (r *MessageRepository) ListByMeeting(ctx context.Context, meetingID domain.MeetingID, limit int) ([]*domain.MeetingMessage, error) {
	q := r.db.WithContext(ctx).Where("meeting_id = ?", int64(meetingID)).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []messageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]*domain.MeetingMessage, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toDomain()
	}
	return out, nil
}
