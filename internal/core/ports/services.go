package ports

import (
	"context"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/events"
)

// Broadcaster is the pub/sub transport. Delivery is best effort: at most once
// and unordered across channels.
type Broadcaster interface {
	Publish(ctx context.Context, env events.Envelope) error
}

type ChannelAuthorizer interface {
	// Authorize reports whether the subscriber may listen on channel.
	// Any failure denies.
	Authorize(ctx context.Context, subscriber domain.UserID, channel string) bool
	// Check is Authorize with the reason for a denial.
	Check(ctx context.Context, subscriber domain.UserID, channel string) error
}

type PeerRegistry interface {
	Register(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (domain.PeerID, error)
	Resolve(ctx context.Context, peerID domain.PeerID) (domain.MeetingID, domain.UserID, error)
	OwnedBy(ctx context.Context, peerID domain.PeerID, userID domain.UserID) bool
	Release(ctx context.Context, peerID domain.PeerID) error
	Touch(ctx context.Context, peerID domain.PeerID) error
}

type SignalingRelay interface {
	Join(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (domain.PeerID, error)
	Leave(ctx context.Context, caller domain.UserID, meetingID domain.MeetingID, peerID domain.PeerID) error
	Heartbeat(ctx context.Context, caller domain.UserID, meetingID domain.MeetingID, peerID domain.PeerID) error
	SendMessage(ctx context.Context, meetingID domain.MeetingID, senderID domain.UserID, body string) (*domain.MeetingMessage, error)
	ListMessages(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, limit int) ([]*domain.MeetingMessage, error)
	RelaySignal(ctx context.Context, caller domain.UserID, sig domain.SignalPayload) error
	NotifyReportCreated(ctx context.Context, report *domain.Report) error
	Evict(ctx context.Context, session *domain.MeetingSession) error
}

// RelayMetrics receives relay outcomes. Implementations must be safe for
// concurrent use.
type RelayMetrics interface {
	RecordOperation(op, outcome string)
	RecordPublish(event string, duration time.Duration, err error)
	RecordAuthorization(namespace string, allowed bool)
	SessionOpened()
	SessionClosed()
}
