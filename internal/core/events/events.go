package events

import (
	"encoding/json"
	"time"

	"meetrelay/internal/core/domain"
)

const (
	EventMessageNew    = "message.new"
	EventUserJoined    = "user.joined"
	EventUserLeft      = "user.left"
	EventSignal        = "signal"
	EventReportCreated = "ReportCreated"
)

// MeetingEvent is the closed set of events the relay publishes. Each variant
// knows its own tag and target channels.
type MeetingEvent interface {
	EventName() string
	Channels() []string
	isMeetingEvent()
}

// Envelope is one publish operation: a channel, an event tag and a payload.
type Envelope struct {
	Channel string
	Event   string
	Payload MeetingEvent
}

// Envelopes expands an event into one envelope per target channel. Fan-out
// envelopes share the same payload value.
func Envelopes(e MeetingEvent) []Envelope {
	channels := e.Channels()
	envs := make([]Envelope, 0, len(channels))
	for _, ch := range channels {
		envs = append(envs, Envelope{Channel: ch, Event: e.EventName(), Payload: e})
	}
	return envs
}

// Marshal serializes the payload for the wire.
func (e Envelope) Marshal() (json.RawMessage, error) {
	return json.Marshal(e.Payload)
}

type UserInfo struct {
	ID    domain.UserID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
}

type MessageInfo struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageSent struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	Sender    UserInfo         `json:"sender"`
	Message   MessageInfo      `json:"message"`
}

type PeerJoined struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	User      UserInfo         `json:"user"`
	PeerID    domain.PeerID    `json:"peerId"`
	JoinedAt  time.Time        `json:"joinedAt"`
}

// PeerLeft deliberately carries no user identity: the session backing that
// lookup may already be gone.
type PeerLeft struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	PeerID    domain.PeerID    `json:"peerId"`
	LeftAt    time.Time        `json:"leftAt"`
}

type SignalRelayed struct {
	MeetingID      domain.MeetingID  `json:"meetingId"`
	SenderPeerID   domain.PeerID     `json:"senderPeerId"`
	ReceiverPeerID domain.PeerID     `json:"receiverPeerId"`
	SignalType     domain.SignalType `json:"signalType"`
	Payload        json.RawMessage   `json:"payload"`
	Timestamp      time.Time         `json:"timestamp"`
}

type ReportCreated struct {
	ID             domain.ReportID `json:"id"`
	Code           string          `json:"code"`
	ReportableType string          `json:"reportableType"`
	ReportableID   int64           `json:"reportableId"`
	CreatedAt      time.Time       `json:"createdAt"`
	CreatedBy      domain.UserID   `json:"createdBy"`
}

func (MessageSent) EventName() string   { return EventMessageNew }
func (PeerJoined) EventName() string    { return EventUserJoined }
func (PeerLeft) EventName() string      { return EventUserLeft }
func (SignalRelayed) EventName() string { return EventSignal }
func (ReportCreated) EventName() string { return EventReportCreated }

func (e MessageSent) Channels() []string { return []string{MeetingChannel(e.MeetingID)} }
func (e PeerJoined) Channels() []string  { return []string{MeetingChannel(e.MeetingID)} }
func (e PeerLeft) Channels() []string    { return []string{MeetingChannel(e.MeetingID)} }

// Signals go to the receiver's peer channel, never to the meeting room.
func (e SignalRelayed) Channels() []string { return []string{PeerChannel(e.ReceiverPeerID)} }

func (e ReportCreated) Channels() []string {
	return []string{ReportsChannel, ReportableChannel(e.ReportableType, e.ReportableID)}
}

func (MessageSent) isMeetingEvent()   {}
func (PeerJoined) isMeetingEvent()    {}
func (PeerLeft) isMeetingEvent()      {}
func (SignalRelayed) isMeetingEvent() {}
func (ReportCreated) isMeetingEvent() {}

func NewUserInfo(u *domain.User) UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email}
}

func NewMessageSent(meetingID domain.MeetingID, sender *domain.User, msg *domain.MeetingMessage) MessageSent {
	return MessageSent{
		MeetingID: meetingID,
		Sender:    NewUserInfo(sender),
		Message: MessageInfo{
			ID:        msg.ID,
			Content:   msg.Body,
			CreatedAt: msg.CreatedAt,
		},
	}
}

func NewPeerJoined(meetingID domain.MeetingID, user *domain.User, peerID domain.PeerID, now time.Time) PeerJoined {
	return PeerJoined{MeetingID: meetingID, User: NewUserInfo(user), PeerID: peerID, JoinedAt: now}
}

func NewPeerLeft(meetingID domain.MeetingID, peerID domain.PeerID, now time.Time) PeerLeft {
	return PeerLeft{MeetingID: meetingID, PeerID: peerID, LeftAt: now}
}

func NewSignalRelayed(sig domain.SignalPayload) SignalRelayed {
	return SignalRelayed{
		MeetingID:      sig.MeetingID,
		SenderPeerID:   sig.SenderPeerID,
		ReceiverPeerID: sig.ReceiverPeerID,
		SignalType:     sig.Type,
		Payload:        sig.Payload,
		Timestamp:      sig.Timestamp,
	}
}

func NewReportCreated(r *domain.Report) ReportCreated {
	return ReportCreated{
		ID:             r.ID,
		Code:           r.Code,
		ReportableType: r.ReportableType,
		ReportableID:   r.ReportableID,
		CreatedAt:      r.CreatedAt,
		CreatedBy:      r.CreatedBy,
	}
}
