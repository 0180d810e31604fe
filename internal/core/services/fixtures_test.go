package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/events"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/repositories/memory"
)

const (
	userAda domain.UserID = 1 // creator of meetings 5 and 10
	userBob domain.UserID = 2 // participant of meetings 5 and 10
	userEve domain.UserID = 3 // unrelated
	userRay domain.UserID = 4 // read-only participant of meetings 5 and 10
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingBroadcaster keeps every envelope and can be told to fail.
type recordingBroadcaster struct {
	mu          sync.Mutex
	envelopes   []events.Envelope
	err         error
	failChannel string
}

func (b *recordingBroadcaster) Publish(ctx context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil && (b.failChannel == "" || b.failChannel == env.Channel) {
		return b.err
	}
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *recordingBroadcaster) all() []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Envelope(nil), b.envelopes...)
}

func (b *recordingBroadcaster) on(channel string) []events.Envelope {
	var out []events.Envelope
	for _, env := range b.all() {
		if env.Channel == channel {
			out = append(out, env)
		}
	}
	return out
}

type countingMetrics struct {
	NopMetrics
	mu       sync.Mutex
	outcomes map[string]int
	open     int
}

func (m *countingMetrics) RecordOperation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[op+":"+outcome]++
}

func (m *countingMetrics) SessionOpened() { m.mu.Lock(); m.open++; m.mu.Unlock() }
func (m *countingMetrics) SessionClosed() { m.mu.Lock(); m.open--; m.mu.Unlock() }

type mockMeetingRepository struct {
	mock.Mock
}

func (m *mockMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	return m.Called(ctx, meeting).Error(0)
}

func (m *mockMeetingRepository) GetByID(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	args := m.Called(ctx, id)
	meeting, _ := args.Get(0).(*domain.Meeting)
	return meeting, args.Error(1)
}

func (m *mockMeetingRepository) Participants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	args := m.Called(ctx, id)
	participants, _ := args.Get(0).([]domain.Participant)
	return participants, args.Error(1)
}

func (m *mockMeetingRepository) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	return m.Called(ctx, id, p).Error(0)
}

func (m *mockMeetingRepository) RemoveParticipant(ctx context.Context, id domain.MeetingID, userID domain.UserID) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockMeetingRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type relayFixture struct {
	store       ports.Store
	registry    ports.PeerRegistry
	authorizer  ports.ChannelAuthorizer
	broadcaster *recordingBroadcaster
	metrics     *countingMetrics
	relay       ports.SignalingRelay
}

// sequentialPeerIDs yields p-1, p-2, ...
func sequentialPeerIDs() func() domain.PeerID {
	var mu sync.Mutex
	n := 0
	return func() domain.PeerID {
		mu.Lock()
		defer mu.Unlock()
		n++
		return domain.PeerID(fmt.Sprintf("p-%d", n))
	}
}

func newRelayFixture(t *testing.T, cfg RelayConfig, registryOpts ...PeerRegistryOption) *relayFixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	store := memory.NewStore()
	for _, u := range []domain.User{
		{ID: userAda, Name: "Ada", Email: "ada@example.com"},
		{ID: userBob, Name: "Bob", Email: "bob@example.com"},
		{ID: userEve, Name: "Eve", Email: "eve@example.com"},
		{ID: userRay, Name: "Ray", Email: "ray@example.com"},
	} {
		u := u
		require.NoError(t, store.Users.Create(ctx, &u))
	}
	for _, id := range []domain.MeetingID{5, 10} {
		require.NoError(t, store.Meetings.Create(ctx, &domain.Meeting{
			ID:           id,
			Title:        fmt.Sprintf("meeting %d", id),
			CreatorID:    userAda,
			Participants: []domain.Participant{
				{UserID: userBob, Access: domain.AccessWrite},
				{UserID: userRay, Access: domain.AccessRead},
			},
			CreatedAt:    fixedNow,
		}))
	}

	opts := append([]PeerRegistryOption{
		WithPeerIDGenerator(sequentialPeerIDs()),
		WithRegistryClock(func() time.Time { return fixedNow }),
	}, registryOpts...)

	metrics := &countingMetrics{}
	registry := NewPeerRegistry(store.Sessions, logger, opts...)
	authorizer := NewChannelAuthorizer(store.Meetings, registry, metrics, logger)
	broadcaster := &recordingBroadcaster{}
	relay := NewSignalingRelay(store, registry, authorizer, broadcaster, metrics, logger, cfg,
		WithRelayClock(func() time.Time { return fixedNow }))

	return &relayFixture{
		store:       store,
		registry:    registry,
		authorizer:  authorizer,
		broadcaster: broadcaster,
		metrics:     metrics,
		relay:       relay,
	}
}
