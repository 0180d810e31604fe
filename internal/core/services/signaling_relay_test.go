package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/events"
	apperrors "meetrelay/pkg/errors"
)

func signal(meetingID domain.MeetingID, from, to domain.PeerID, typ domain.SignalType, payload string) domain.SignalPayload {
	return domain.SignalPayload{
		MeetingID:      meetingID,
		SenderPeerID:   from,
		ReceiverPeerID: to,
		Type:           typ,
		Payload:        json.RawMessage(payload),
	}
}

func TestSignalingRelay_EndToEndScenario(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("p-1"), p1)

	p2, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("p-2"), p2)

	err = f.relay.RelaySignal(ctx, userAda, signal(10, p1, p2, domain.SignalOffer, `"sdp-blob"`))
	require.NoError(t, err)

	signals := f.broadcaster.on("peer.p-2")
	require.Len(t, signals, 1)
	assert.Equal(t, events.EventSignal, signals[0].Event)
	relayed, ok := signals[0].Payload.(events.SignalRelayed)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("p-1"), relayed.SenderPeerID)
	assert.Equal(t, domain.PeerID("p-2"), relayed.ReceiverPeerID)
	assert.Equal(t, domain.SignalOffer, relayed.SignalType)
	assert.JSONEq(t, `"sdp-blob"`, string(relayed.Payload))
	assert.Equal(t, fixedNow, relayed.Timestamp)

	require.NoError(t, f.relay.Leave(ctx, userBob, 10, p2))

	meetingEvents := f.broadcaster.on("meeting.10")
	require.Len(t, meetingEvents, 3)
	assert.Equal(t, events.EventUserJoined, meetingEvents[0].Event)
	assert.Equal(t, events.EventUserJoined, meetingEvents[1].Event)
	assert.Equal(t, events.EventUserLeft, meetingEvents[2].Event)
	left, ok := meetingEvents[2].Payload.(events.PeerLeft)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("p-2"), left.PeerID)
	assert.Equal(t, domain.MeetingID(10), left.MeetingID)

	err = f.relay.RelaySignal(ctx, userAda, signal(10, p1, p2, domain.SignalOffer, `"sdp-blob"`))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnknownPeer))
	assert.Len(t, f.broadcaster.on("peer.p-2"), 1, "nothing published for the stale peer")
}

func TestSignalingRelay_JoinThenResolve(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	peerID, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)

	meetingID, userID, err := f.registry.Resolve(ctx, peerID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingID(10), meetingID)
	assert.Equal(t, userBob, userID)

	joined := f.broadcaster.on("meeting.10")
	require.Len(t, joined, 1)
	payload, ok := joined[0].Payload.(events.PeerJoined)
	require.True(t, ok)
	assert.Equal(t, peerID, payload.PeerID)
	assert.Equal(t, "Bob", payload.User.Name)
	assert.Equal(t, "bob@example.com", payload.User.Email)
	assert.Equal(t, fixedNow, payload.JoinedAt)
}

func TestSignalingRelay_JoinAccessChecks(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	_, err := f.relay.Join(ctx, 999, userAda)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	_, err = f.relay.Join(ctx, 10, userEve)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	assert.Empty(t, f.broadcaster.all())
	sessions, err := f.store.Sessions.ListByMeeting(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSignalingRelay_JoinDuplicateSession(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig(), WithMultipleSessions(false))
	ctx := context.Background()

	_, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)

	_, err = f.relay.Join(ctx, 10, userAda)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	assert.Len(t, f.broadcaster.on("meeting.10"), 1)
}

func TestSignalingRelay_JoinDeliveryFailureKeepsSession(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	f.broadcaster.err = errors.New("broadcaster unreachable")
	ctx := context.Background()

	peerID, err := f.relay.Join(ctx, 10, userAda)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDeliveryFailed))
	assert.Equal(t, domain.PeerID("p-1"), peerID)

	_, _, err = f.registry.Resolve(ctx, peerID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.metrics.outcomes["join:delivery_failed"])
}

func TestSignalingRelay_LeaveChecks(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)

	err = f.relay.Leave(ctx, userAda, 10, "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	err = f.relay.Leave(ctx, userAda, 5, p1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound), "peer belongs to another meeting")

	err = f.relay.Leave(ctx, userBob, 10, p1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden), "only the owner may leave")

	require.NoError(t, f.relay.Leave(ctx, userAda, 10, p1))
	err = f.relay.Leave(ctx, userAda, 10, p1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound), "left is terminal")

	assert.Len(t, f.broadcaster.on("meeting.10"), 2)
	assert.Equal(t, 0, f.metrics.open)
}

func TestSignalingRelay_RejoinGetsFreshPeerID(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	require.NoError(t, f.relay.Leave(ctx, userAda, 10, p1))

	p2, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestSignalingRelay_Heartbeat(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)

	assert.NoError(t, f.relay.Heartbeat(ctx, userAda, 10, p1))
	assert.True(t, apperrors.HasCode(f.relay.Heartbeat(ctx, userBob, 10, p1), apperrors.ErrCodeForbidden))
	assert.True(t, apperrors.HasCode(f.relay.Heartbeat(ctx, userAda, 10, "gone"), apperrors.ErrCodeNotFound))
}

func TestSignalingRelay_SendMessage(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	msg, err := f.relay.SendMessage(ctx, 10, userBob, "  hello team  ")
	require.NoError(t, err)
	assert.Equal(t, "hello team", msg.Body)
	assert.NotZero(t, msg.ID)

	published := f.broadcaster.on("meeting.10")
	require.Len(t, published, 1)
	assert.Equal(t, events.EventMessageNew, published[0].Event)
	sent, ok := published[0].Payload.(events.MessageSent)
	require.True(t, ok)
	assert.Equal(t, userBob, sent.Sender.ID)
	assert.Equal(t, "hello team", sent.Message.Content)
	assert.Equal(t, msg.ID, sent.Message.ID)

	history, err := f.relay.ListMessages(ctx, 10, userAda, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello team", history[0].Body)
}

func TestSignalingRelay_SendMessageRejectsInvalidBody(t *testing.T) {
	cfg := DefaultRelayConfig()
	cfg.MaxMessageLength = 10
	f := newRelayFixture(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name  string
		body  string
		cause error
	}{
		{"empty", "", domain.ErrEmptyMessage},
		{"whitespace", "   \n\t ", domain.ErrEmptyMessage},
		{"control characters only", "\x00\x01", domain.ErrEmptyMessage},
		{"too long", strings.Repeat("a", 11), domain.ErrMessageTooLong},
		{"invalid utf-8", "hi\xff", domain.ErrInvalidEncoding},
		{"invalid utf-8 among control runes", "\x00ok\xc3", domain.ErrInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := f.relay.SendMessage(ctx, 10, userAda, tt.body)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
			assert.ErrorIs(t, err, tt.cause)
		})
	}

	history, err := f.store.Messages.ListByMeeting(ctx, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, history, "no message persisted")
	assert.Empty(t, f.broadcaster.all(), "no envelope published")
}

func TestSignalingRelay_SendMessageRequiresMembership(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	_, err := f.relay.SendMessage(ctx, 10, userEve, "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	_, err = f.relay.ListMessages(ctx, 10, userEve, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	_, err = f.relay.SendMessage(ctx, 404, userAda, "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestSignalingRelay_SendMessageRequiresWriteAccess(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	msg, err := f.relay.SendMessage(ctx, 10, userRay, "hi")
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
	assert.ErrorIs(t, err, domain.ErrReadOnly)
	assert.Empty(t, f.broadcaster.all())

	_, err = f.relay.ListMessages(ctx, 10, userRay, 10)
	assert.NoError(t, err, "read access still lists history")

	peerID, err := f.relay.Join(ctx, 10, userRay)
	require.NoError(t, err, "read access still joins")
	assert.NotEmpty(t, peerID)

	_, err = f.relay.SendMessage(ctx, 10, userBob, "hi")
	assert.NoError(t, err)
}

func TestSignalingRelay_MeetingOrderPreserved(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	_, err = f.relay.SendMessage(ctx, 10, userAda, "first")
	require.NoError(t, err)
	_, err = f.relay.SendMessage(ctx, 10, userAda, "second")
	require.NoError(t, err)
	require.NoError(t, f.relay.Leave(ctx, userAda, 10, p1))

	var tags []string
	for _, env := range f.broadcaster.on("meeting.10") {
		tags = append(tags, env.Event)
	}
	assert.Equal(t, []string{"user.joined", "message.new", "message.new", "user.left"}, tags)
}

func TestSignalingRelay_RelaySignalChecks(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	p2, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)
	p3, err := f.relay.Join(ctx, 5, userBob)
	require.NoError(t, err)
	before := len(f.broadcaster.all())

	tests := []struct {
		name   string
		caller domain.UserID
		sig    domain.SignalPayload
		code   apperrors.ErrorCode
	}{
		{"unknown sender", userAda, signal(10, "ghost", p2, domain.SignalOffer, `"x"`), apperrors.ErrCodeUnknownPeer},
		{"sender in another meeting", userBob, signal(10, p3, p1, domain.SignalOffer, `"x"`), apperrors.ErrCodeUnknownPeer},
		{"unknown receiver", userAda, signal(10, p1, "ghost", domain.SignalOffer, `"x"`), apperrors.ErrCodeUnknownPeer},
		{"receiver in another meeting", userAda, signal(10, p1, p3, domain.SignalOffer, `"x"`), apperrors.ErrCodeUnknownPeer},
		{"caller does not own sender", userBob, signal(10, p1, p2, domain.SignalOffer, `"x"`), apperrors.ErrCodeForbidden},
		{"empty payload", userAda, signal(10, p1, p2, domain.SignalOffer, ``), apperrors.ErrCodeValidation},
		{"invalid json payload", userAda, signal(10, p1, p2, domain.SignalOffer, `{nope`), apperrors.ErrCodeValidation},
		{"bad signal type", userAda, signal(10, p1, p2, "Offer!", `"x"`), apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.relay.RelaySignal(ctx, tt.caller, tt.sig)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Len(t, f.broadcaster.all(), before, "rejected signals are dropped")
}

func TestSignalingRelay_RelaySignalCustomTypeStampsCallTime(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	p2, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)

	sig := signal(10, p2, p1, "renegotiate", `{"reason":"screen-share"}`)
	sig.Timestamp = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.relay.RelaySignal(ctx, userBob, sig))

	got := f.broadcaster.on("peer.p-1")
	require.Len(t, got, 1)
	relayed := got[0].Payload.(events.SignalRelayed)
	assert.Equal(t, domain.SignalType("renegotiate"), relayed.SignalType)
	assert.Equal(t, fixedNow, relayed.Timestamp, "timestamp is taken when the relay is called")
	assert.Empty(t, f.broadcaster.on("meeting.10")[2:], "signals never reach the meeting channel")
}

func TestSignalingRelay_StrictSignals(t *testing.T) {
	cfg := DefaultRelayConfig()
	cfg.StrictSignals = true
	f := newRelayFixture(t, cfg)
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	p2, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)

	err = f.relay.RelaySignal(ctx, userAda, signal(10, p1, p2, domain.SignalOffer, `"sdp-blob"`))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	candidate := `{"candidate":"candidate:1 1 UDP 2122252543 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`
	assert.NoError(t, f.relay.RelaySignal(ctx, userAda, signal(10, p1, p2, domain.SignalICECandidate, candidate)))
}

func TestSignalingRelay_RelaySignalDeliveryError(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	p2, err := f.relay.Join(ctx, 10, userBob)
	require.NoError(t, err)

	f.broadcaster.err = errors.New("timeout")
	f.broadcaster.failChannel = "peer.p-2"

	err = f.relay.RelaySignal(ctx, userAda, signal(10, p1, p2, domain.SignalAnswer, `"sdp"`))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDeliveryFailed))
	assert.Equal(t, "peer.p-2", apperrors.GetAppError(err).Context["channel"])
}

func TestSignalingRelay_NotifyReportCreated(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	report := &domain.Report{
		ID:             3,
		Code:           "RPT-0003",
		ReportableType: "Criminal",
		ReportableID:   77,
		CreatedBy:      userAda,
	}
	require.NoError(t, f.relay.NotifyReportCreated(ctx, report))

	published := f.broadcaster.all()
	require.Len(t, published, 2)
	assert.Equal(t, "reports", published[0].Channel)
	assert.Equal(t, "reports.Criminal.77", published[1].Channel)

	first, err := published[0].Marshal()
	require.NoError(t, err)
	second, err := published[1].Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second), "identical payload on both channels")

	payload := published[0].Payload.(events.ReportCreated)
	assert.Equal(t, fixedNow, payload.CreatedAt)
}

func TestSignalingRelay_NotifyReportCreatedFanOutContinuesOnFailure(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	f.broadcaster.err = errors.New("down")
	f.broadcaster.failChannel = "reports"

	err := f.relay.NotifyReportCreated(context.Background(), &domain.Report{ID: 1, ReportableType: "Incident", ReportableID: 4})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDeliveryFailed))
	assert.Len(t, f.broadcaster.on("reports.Incident.4"), 1)
}

func TestSignalingRelay_NotifyReportCreatedValidation(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	for _, r := range []*domain.Report{
		nil,
		{ID: 0, ReportableType: "Criminal", ReportableID: 1},
		{ID: 1, ReportableType: "", ReportableID: 1},
		{ID: 1, ReportableType: "Bad.Type", ReportableID: 1},
		{ID: 1, ReportableType: "Criminal", ReportableID: 0},
	} {
		err := f.relay.NotifyReportCreated(ctx, r)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	}
	assert.Empty(t, f.broadcaster.all())
}

func TestSignalingRelay_Evict(t *testing.T) {
	f := newRelayFixture(t, DefaultRelayConfig())
	ctx := context.Background()

	p1, err := f.relay.Join(ctx, 10, userAda)
	require.NoError(t, err)
	session, err := f.store.Sessions.GetByPeer(ctx, p1)
	require.NoError(t, err)

	require.NoError(t, f.relay.Evict(ctx, session))
	left := f.broadcaster.on("meeting.10")
	require.Len(t, left, 2)
	assert.Equal(t, events.EventUserLeft, left[1].Event)

	err = f.relay.Evict(ctx, session)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}
