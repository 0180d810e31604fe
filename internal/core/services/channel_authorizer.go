package services

import (
	"context"
	"errors"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/events"
	"meetrelay/internal/core/ports"
	apperrors "meetrelay/pkg/errors"

	"go.uber.org/zap"
)

type channelAuthorizer struct {
	meetings ports.MeetingRepository
	peers    ports.PeerRegistry
	metrics  ports.RelayMetrics
	logger   *zap.SugaredLogger
}

// NewChannelAuthorizer returns a fail-closed authorizer: any parse error,
// store failure or unknown namespace denies.
func NewChannelAuthorizer(
	meetings ports.MeetingRepository,
	peers ports.PeerRegistry,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
) ports.ChannelAuthorizer {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &channelAuthorizer{
		meetings: meetings,
		peers:    peers,
		metrics:  metrics,
		logger:   logger,
	}
}

func (a *channelAuthorizer) Authorize(ctx context.Context, subscriber domain.UserID, channel string) bool {
	return a.Check(ctx, subscriber, channel) == nil
}

func (a *channelAuthorizer) Check(ctx context.Context, subscriber domain.UserID, channel string) error {
	ch, err := events.ParseChannel(channel)
	if err != nil {
		a.metrics.RecordAuthorization("malformed", false)
		return apperrors.NewAuthorizationError(err, channel)
	}

	err = a.decide(ctx, subscriber, ch)
	a.metrics.RecordAuthorization(string(ch.Namespace), err == nil)
	if err != nil {
		a.logger.Debugw("channel access denied",
			"channel", channel,
			"user_id", subscriber,
			"reason", err,
		)
		return apperrors.NewAuthorizationError(err, channel)
	}
	return nil
}

func (a *channelAuthorizer) decide(ctx context.Context, subscriber domain.UserID, ch events.Channel) error {
	if subscriber <= 0 {
		return domain.ErrChannelDenied
	}

	switch ch.Namespace {
	case events.NamespaceMeeting:
		meeting, err := a.meetings.GetByID(ctx, ch.MeetingID)
		if err != nil {
			if !errors.Is(err, domain.ErrMeetingNotFound) {
				a.logger.Warnw("meeting lookup failed during authorization",
					"meeting_id", ch.MeetingID,
					"error", err,
				)
			}
			return err
		}
		if !meeting.HasMember(subscriber) {
			return domain.ErrChannelDenied
		}
		return nil

	case events.NamespacePeer:
		if !a.peers.OwnedBy(ctx, ch.PeerID, subscriber) {
			return domain.ErrChannelDenied
		}
		return nil

	case events.NamespaceReports:
		// Report feeds are open to every authenticated subscriber.
		return nil
	}

	return domain.ErrChannelDenied
}
