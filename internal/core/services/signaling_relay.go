package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/events"
	"meetrelay/internal/core/ports"
	apperrors "meetrelay/pkg/errors"
	"meetrelay/pkg/tracing"
	"meetrelay/pkg/utils"
	"meetrelay/pkg/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RelayConfig bounds the inputs the relay accepts.
type RelayConfig struct {
	MaxMessageLength    int
	MaxSignalBytes      int
	StrictSignals       bool
	MessageHistoryLimit int
}

// DefaultRelayConfig mirrors the config package defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxMessageLength:    5000,
		MaxSignalBytes:      64 * 1024,
		MessageHistoryLimit: 50,
	}
}

// RelayOption configures a signaling relay.
type RelayOption func(*signalingRelay)

// WithRelayClock replaces time.Now for event timestamps.
func WithRelayClock(now func() time.Time) RelayOption {
	return func(s *signalingRelay) { s.now = now }
}

type signalingRelay struct {
	store       ports.Store
	registry    ports.PeerRegistry
	authorizer  ports.ChannelAuthorizer
	broadcaster ports.Broadcaster
	metrics     ports.RelayMetrics
	logger      *zap.SugaredLogger
	cfg         RelayConfig
	now         func() time.Time
}

func NewSignalingRelay(
	store ports.Store,
	registry ports.PeerRegistry,
	authorizer ports.ChannelAuthorizer,
	broadcaster ports.Broadcaster,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
	cfg RelayConfig,
	opts ...RelayOption,
) ports.SignalingRelay {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	s := &signalingRelay{
		store:       store,
		registry:    registry,
		authorizer:  authorizer,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join registers a new peer for the user and announces it on the meeting
// channel. When only the announcement fails, the peer id is returned along
// with the delivery error: the session exists and must be left explicitly.
func (s *signalingRelay) Join(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (peerID domain.PeerID, err error) {
	ctx, span := tracing.TraceRelayOperation(ctx, "join", int64(meetingID))
	defer span.End()
	defer func() { s.finish(ctx, "join", err) }()

	if _, err := s.requireMember(ctx, meetingID, userID); err != nil {
		return "", err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}

	peerID, err = s.registry.Register(ctx, meetingID, userID)
	if err != nil {
		return "", err
	}
	s.metrics.SessionOpened()
	span.SetAttributes(tracing.PeerIDKey.String(string(peerID)))

	s.logger.Infow("peer joined",
		"meeting_id", meetingID,
		"user_id", userID,
		"peer_id", peerID,
	)

	return peerID, s.publish(ctx, events.NewPeerJoined(meetingID, user, peerID, s.now()))
}

func (s *signalingRelay) Leave(ctx context.Context, caller domain.UserID, meetingID domain.MeetingID, peerID domain.PeerID) (err error) {
	ctx, span := tracing.TraceRelayOperation(ctx, "leave", int64(meetingID))
	defer span.End()
	defer func() { s.finish(ctx, "leave", err) }()

	if err := s.requireOwnedPeer(ctx, caller, meetingID, peerID); err != nil {
		return err
	}
	if err := s.registry.Release(ctx, peerID); err != nil {
		return err
	}
	s.metrics.SessionClosed()

	s.logger.Infow("peer left",
		"meeting_id", meetingID,
		"user_id", caller,
		"peer_id", peerID,
	)

	return s.publish(ctx, events.NewPeerLeft(meetingID, peerID, s.now()))
}

// Evict ends a session on behalf of the system, e.g. after an idle timeout.
func (s *signalingRelay) Evict(ctx context.Context, session *domain.MeetingSession) (err error) {
	ctx, span := tracing.TraceRelayOperation(ctx, "evict", int64(session.MeetingID))
	defer span.End()
	defer func() { s.finish(ctx, "evict", err) }()

	if err := s.registry.Release(ctx, session.PeerID); err != nil {
		return err
	}
	s.metrics.SessionClosed()

	s.logger.Infow("peer evicted",
		"meeting_id", session.MeetingID,
		"user_id", session.UserID,
		"peer_id", session.PeerID,
		"last_seen_at", session.LastSeenAt,
	)

	return s.publish(ctx, events.NewPeerLeft(session.MeetingID, session.PeerID, s.now()))
}

func (s *signalingRelay) Heartbeat(ctx context.Context, caller domain.UserID, meetingID domain.MeetingID, peerID domain.PeerID) (err error) {
	defer func() { s.finish(ctx, "heartbeat", err) }()

	if err := s.requireOwnedPeer(ctx, caller, meetingID, peerID); err != nil {
		return err
	}
	return s.registry.Touch(ctx, peerID)
}

// SendMessage persists a chat message and publishes it. An invalid body is
// rejected before anything is stored or published.
func (s *signalingRelay) SendMessage(ctx context.Context, meetingID domain.MeetingID, senderID domain.UserID, body string) (msg *domain.MeetingMessage, err error) {
	ctx, span := tracing.TraceRelayOperation(ctx, "send_message", int64(meetingID))
	defer span.End()
	defer func() { s.finish(ctx, "send_message", err) }()

	body, err = s.validateBody(body)
	if err != nil {
		return nil, err
	}
	meeting, err := s.requireMember(ctx, meetingID, senderID)
	if err != nil {
		return nil, err
	}
	if !meeting.CanWrite(senderID) {
		return nil, apperrors.NewWriteAccessError(domain.ErrReadOnly)
	}
	sender, err := s.loadUser(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg = &domain.MeetingMessage{
		MeetingID: meetingID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	s.logger.Debugw("message stored",
		"meeting_id", meetingID,
		"user_id", senderID,
		"message_id", msg.ID,
	)

	return msg, s.publish(ctx, events.NewMessageSent(meetingID, sender, msg))
}

func (s *signalingRelay) ListMessages(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID, limit int) ([]*domain.MeetingMessage, error) {
	if _, err := s.requireMember(ctx, meetingID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.MessageHistoryLimit {
		limit = s.cfg.MessageHistoryLimit
	}

	msgs, err := s.store.Messages.ListByMeeting(ctx, meetingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// RelaySignal forwards a negotiation payload to the receiver's peer channel.
// Both peers must hold live sessions in the meeting and the caller must own
// the sender peer. Nothing is stored.
func (s *signalingRelay) RelaySignal(ctx context.Context, caller domain.UserID, sig domain.SignalPayload) (err error) {
	ctx, span := tracing.TraceRelayOperation(ctx, "relay_signal", int64(sig.MeetingID))
	defer span.End()
	defer func() { s.finish(ctx, "relay_signal", err) }()

	span.SetAttributes(
		tracing.PeerIDKey.String(string(sig.SenderPeerID)),
		attribute.String("signal.receiver", string(sig.ReceiverPeerID)),
		tracing.SignalTypeKey.String(string(sig.Type)),
	)

	if err := s.requireLivePeer(ctx, sig.MeetingID, sig.SenderPeerID); err != nil {
		return err
	}
	if err := s.requireLivePeer(ctx, sig.MeetingID, sig.ReceiverPeerID); err != nil {
		return err
	}
	if err := s.authorizer.Check(ctx, caller, events.PeerChannel(sig.SenderPeerID)); err != nil {
		return err
	}

	opts := validation.SignalOptions{MaxBytes: s.cfg.MaxSignalBytes, Strict: s.cfg.StrictSignals}
	if err := validation.ValidateSignal(string(sig.Type), sig.Payload, opts); err != nil {
		return apperrors.NewValidationError(domain.ErrInvalidSignal, err.Error())
	}

	sig.Timestamp = s.now()

	s.logger.Debugw("relaying signal",
		"meeting_id", sig.MeetingID,
		"peer_id", sig.SenderPeerID,
		"receiver_peer_id", sig.ReceiverPeerID,
		"signal_type", sig.Type,
		"payload_bytes", len(sig.Payload),
	)

	return s.publish(ctx, events.NewSignalRelayed(sig))
}

// NotifyReportCreated fans the report out to the global and the per-entity
// report channels.
func (s *signalingRelay) NotifyReportCreated(ctx context.Context, report *domain.Report) (err error) {
	ctx, span := tracing.StartSpan(ctx, "relay.notify_report_created")
	defer span.End()
	defer func() { s.finish(ctx, "notify_report_created", err) }()

	if report == nil || report.ID <= 0 {
		return apperrors.NewValidationError(nil, "report id is required")
	}
	if _, err := events.ParseChannel(events.ReportableChannel(report.ReportableType, report.ReportableID)); err != nil {
		return apperrors.NewValidationError(err, "invalid reportable type or id")
	}

	r := *report
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return s.publish(ctx, events.NewReportCreated(&r))
}

// publish hands every envelope of the event to the broadcaster. Fan-out
// continues past a failed channel; the first failure is returned.
func (s *signalingRelay) publish(ctx context.Context, event events.MeetingEvent) error {
	var firstErr error
	for _, env := range events.Envelopes(event) {
		pctx, span := tracing.TracePublish(ctx, env.Channel, env.Event)
		start := time.Now()
		err := s.broadcaster.Publish(pctx, env)
		s.metrics.RecordPublish(env.Event, time.Since(start), err)
		if err != nil {
			tracing.RecordError(pctx, err)
			s.logger.Warnw("event delivery failed",
				"channel", env.Channel,
				"event", env.Event,
				"error", err,
			)
			if !apperrors.HasCode(err, apperrors.ErrCodeDeliveryFailed) {
				err = apperrors.NewDeliveryError(err, env.Channel)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		span.End()
	}
	return firstErr
}

// requireMember returns NotFound for a missing meeting and an authorization
// error when the user may not use the meeting channel.
func (s *signalingRelay) requireMember(ctx context.Context, meetingID domain.MeetingID, userID domain.UserID) (*domain.Meeting, error) {
	if meetingID <= 0 {
		return nil, apperrors.NewInvalidInputError("meeting id must be positive")
	}
	meeting, err := s.store.Meetings.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, domain.ErrMeetingNotFound) {
			return nil, apperrors.WrapNotFoundError(err, "meeting")
		}
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}
	if err := s.authorizer.Check(ctx, userID, events.MeetingChannel(meetingID)); err != nil {
		return nil, err
	}
	return meeting, nil
}

// requireLivePeer maps a missing session or a session in another meeting
// to UnknownPeer.
func (s *signalingRelay) requireLivePeer(ctx context.Context, meetingID domain.MeetingID, peerID domain.PeerID) error {
	mid, _, err := s.registry.Resolve(ctx, peerID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return apperrors.NewUnknownPeerError(domain.ErrUnknownPeer, string(peerID))
		}
		return err
	}
	if mid != meetingID {
		return apperrors.NewUnknownPeerError(domain.ErrUnknownPeer, string(peerID))
	}
	return nil
}

// requireOwnedPeer checks the peer lives in the meeting and that the caller
// may publish on its behalf.
func (s *signalingRelay) requireOwnedPeer(ctx context.Context, caller domain.UserID, meetingID domain.MeetingID, peerID domain.PeerID) error {
	mid, _, err := s.registry.Resolve(ctx, peerID)
	if err != nil {
		return err
	}
	if mid != meetingID {
		return apperrors.WrapNotFoundError(domain.ErrSessionNotFound, "session").
			WithContext("peer_id", string(peerID))
	}
	return s.authorizer.Check(ctx, caller, events.PeerChannel(peerID))
}

func (s *signalingRelay) validateBody(body string) (string, error) {
	// Checked on the raw input: sanitizing rewrites invalid bytes to U+FFFD.
	if !utf8.ValidString(body) {
		return "", apperrors.NewValidationError(domain.ErrInvalidEncoding, "message body is not valid UTF-8")
	}
	body = utils.SanitizeString(body)
	if body == "" {
		return "", apperrors.NewValidationError(domain.ErrEmptyMessage, "message body is required")
	}
	trimmed, err := validation.ValidateMessageBody(body, s.cfg.MaxMessageLength)
	if err != nil {
		return "", apperrors.NewValidationError(domain.ErrMessageTooLong, err.Error())
	}
	return trimmed, nil
}

func (s *signalingRelay) loadUser(ctx context.Context, userID domain.UserID) (*domain.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.WrapNotFoundError(err, "user")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// finish records the operation outcome on metrics and the active span.
func (s *signalingRelay) finish(ctx context.Context, op string, err error) {
	s.metrics.RecordOperation(op, outcome(err))
	if err != nil {
		tracing.RecordError(ctx, err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return strings.ToLower(string(appErr.Code))
	}
	return "error"
}
