package domain

import (
	"encoding/json"
	"time"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// SignalPayload is relayed as a value and never persisted.
type SignalPayload struct {
	MeetingID      MeetingID
	SenderPeerID   PeerID
	ReceiverPeerID PeerID
	Type           SignalType
	Payload        json.RawMessage
	Timestamp      time.Time
}
