package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pion/webrtc/v3"
)

// SignalTypeRegex accepts offer, answer, ice-candidate and custom tokens.
var SignalTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9._-]{0,63}$`)

// SignalOptions controls payload checks.
type SignalOptions struct {
	MaxBytes int
	// Strict parses offer/answer SDP and ice-candidate payloads.
	Strict bool
}

// ValidateSignalType validates the signal type token.
func ValidateSignalType(signalType string) error {
	if signalType == "" {
		return fmt.Errorf("signal type is required")
	}
	if !SignalTypeRegex.MatchString(signalType) {
		return fmt.Errorf("invalid signal type %q", signalType)
	}
	return nil
}

// ValidateSignal checks the type and the opaque payload. The payload is only
// inspected beyond size and JSON well-formedness in strict mode.
func ValidateSignal(signalType string, payload json.RawMessage, opts SignalOptions) error {
	if err := ValidateSignalType(signalType); err != nil {
		return err
	}
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("signal payload is required")
	}
	if opts.MaxBytes > 0 && len(payload) > opts.MaxBytes {
		return fmt.Errorf("signal payload is too large (max %d bytes)", opts.MaxBytes)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("signal payload must be valid JSON")
	}
	if !opts.Strict {
		return nil
	}

	switch signalType {
	case webrtc.SDPTypeOffer.String(), webrtc.SDPTypeAnswer.String():
		return validateSDPPayload(signalType, payload)
	case "ice-candidate":
		return validateICECandidatePayload(payload)
	}
	return nil
}

// validateSDPPayload accepts either a bare SDP string or an object carrying
// an sdp field, the shape browsers produce for RTCSessionDescription.
func validateSDPPayload(signalType string, payload json.RawMessage) error {
	var raw string
	if err := json.Unmarshal(payload, &raw); err != nil {
		var desc struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("%s payload must be an SDP string or {sdp} object", signalType)
		}
		raw = desc.SDP
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("SDP cannot be empty")
	}

	sd := webrtc.SessionDescription{Type: webrtc.NewSDPType(signalType), SDP: raw}
	if _, err := sd.Unmarshal(); err != nil {
		return fmt.Errorf("invalid SDP in %s: %w", signalType, err)
	}
	return nil
}

func validateICECandidatePayload(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return fmt.Errorf("invalid ICE candidate payload: %w", err)
	}
	if candidate.Candidate == "" {
		return fmt.Errorf("ICE candidate is required")
	}
	return nil
}
