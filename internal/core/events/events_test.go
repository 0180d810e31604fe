package events

import (
	"encoding/json"
	"testing"
	"time"

	"meetrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopes_MeetingScopedEvents(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.User{ID: 7, Name: "Ada", Email: "ada@example.com"}
	msg := &domain.MeetingMessage{ID: 3, MeetingID: 10, SenderID: 7, Body: "hi", CreatedAt: now}

	tests := []struct {
		name  string
		event MeetingEvent
		tag   string
	}{
		{"message", NewMessageSent(10, user, msg), EventMessageNew},
		{"joined", NewPeerJoined(10, user, "p-1", now), EventUserJoined},
		{"left", NewPeerLeft(10, "p-1", now), EventUserLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := Envelopes(tt.event)
			require.Len(t, envs, 1)
			assert.Equal(t, "meeting.10", envs[0].Channel)
			assert.Equal(t, tt.tag, envs[0].Event)
		})
	}
}

func TestEnvelopes_SignalTargetsReceiverPeer(t *testing.T) {
	sig := domain.SignalPayload{
		MeetingID:      10,
		SenderPeerID:   "p-1",
		ReceiverPeerID: "p-2",
		Type:           domain.SignalOffer,
		Payload:        json.RawMessage(`"sdp-blob"`),
		Timestamp:      time.Now(),
	}

	envs := Envelopes(NewSignalRelayed(sig))
	require.Len(t, envs, 1)
	assert.Equal(t, "peer.p-2", envs[0].Channel)
	assert.Equal(t, EventSignal, envs[0].Event)

	raw, err := envs[0].Marshal()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "p-1", decoded["senderPeerId"])
	assert.Equal(t, "p-2", decoded["receiverPeerId"])
	assert.Equal(t, "offer", decoded["signalType"])
	assert.Equal(t, "sdp-blob", decoded["payload"])
	assert.EqualValues(t, 10, decoded["meetingId"])
}

func TestEnvelopes_ReportFansOutToTwoChannels(t *testing.T) {
	report := &domain.Report{
		ID:             1,
		Code:           "RPT-0001",
		ReportableType: "Criminal",
		ReportableID:   77,
		CreatedBy:      4,
		CreatedAt:      time.Now(),
	}

	envs := Envelopes(NewReportCreated(report))
	require.Len(t, envs, 2)
	assert.Equal(t, "reports", envs[0].Channel)
	assert.Equal(t, "reports.Criminal.77", envs[1].Channel)

	first, err := envs[0].Marshal()
	require.NoError(t, err)
	second, err := envs[1].Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestPeerLeft_CarriesNoUserIdentity(t *testing.T) {
	raw, err := json.Marshal(NewPeerLeft(10, "p-2", time.Now()))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 3)
	assert.Contains(t, decoded, "meetingId")
	assert.Contains(t, decoded, "peerId")
	assert.Contains(t, decoded, "leftAt")
}

func TestMessageSent_PayloadShape(t *testing.T) {
	now := time.Now().UTC()
	user := &domain.User{ID: 7, Name: "Ada", Email: "ada@example.com"}
	msg := &domain.MeetingMessage{ID: 3, Body: "hello", CreatedAt: now}

	raw, err := json.Marshal(NewMessageSent(10, user, msg))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sender":{"id":7,"name":"Ada","email":"ada@example.com"}`)
	assert.Contains(t, string(raw), `"content":"hello"`)
}
