package events

import (
	"errors"
	"testing"

	"meetrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel_Valid(t *testing.T) {
	tests := []struct {
		name string
		want Channel
	}{
		{"meeting.5", Channel{Namespace: NamespaceMeeting, MeetingID: 5}},
		{"peer.abc123", Channel{Namespace: NamespacePeer, PeerID: "abc123"}},
		{"peer.3f1c2a9e-8b7d-4c3e-9f10-2b4a6c8d0e12", Channel{Namespace: NamespacePeer, PeerID: "3f1c2a9e-8b7d-4c3e-9f10-2b4a6c8d0e12"}},
		{"reports", Channel{Namespace: NamespaceReports}},
		{"reports.Criminal.77", Channel{Namespace: NamespaceReports, ReportableType: "Criminal", ReportableID: 77}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannel(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.Name())
		})
	}
}

func TestParseChannel_Malformed(t *testing.T) {
	names := []string{
		"",
		"meeting",
		"meeting.",
		"meeting.abc",
		"meeting.-1",
		"meeting.+5",
		"meeting.0",
		"meeting.05",
		"meeting.007",
		"meeting.5.6",
		"peer.",
		"peer.a.b",
		"peer.p 1",
		"reports.",
		"reports.Criminal",
		"reports.Criminal.x",
		"reports.Criminal.077",
		"reports..7",
		"rooms.5",
		"private-meeting.5",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChannel(name)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedChannel))
		})
	}
}

func TestChannelBuilders(t *testing.T) {
	assert.Equal(t, "meeting.10", MeetingChannel(10))
	assert.Equal(t, "peer.p-2", PeerChannel("p-2"))
	assert.Equal(t, "reports.Criminal.77", ReportableChannel("Criminal", 77))
}
