package domain

import "errors"

var (
	ErrMeetingNotFound  = errors.New("meeting not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrDuplicateSession = errors.New("user already holds a live session for this meeting")
	ErrEmptyMessage     = errors.New("message body is empty")
	ErrMessageTooLong   = errors.New("message body is too long")
	ErrInvalidEncoding  = errors.New("message body is not valid UTF-8")
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrChannelDenied    = errors.New("channel access denied")
	ErrReadOnly         = errors.New("participant has read-only access")
	ErrMalformedChannel = errors.New("malformed channel name")
	ErrDeliveryFailed   = errors.New("delivery failed")
)
