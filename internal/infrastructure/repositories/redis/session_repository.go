package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "meetrelay:"

// createScript writes the indexes before the session value, so a failed
// index write never leaves a session the sweeper cannot find.
// KEYS: session, meeting set, last-seen zset. ARGV: value, peer id, score.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[2])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

type sessionRecord struct {
	PeerID     domain.PeerID    `json:"peer_id"`
	MeetingID  domain.MeetingID `json:"meeting_id"`
	UserID     domain.UserID    `json:"user_id"`
	CreatedAt  time.Time        `json:"created_at"`
	LastSeenAt time.Time        `json:"last_seen_at"`
}

func (r sessionRecord) toDomain() *domain.MeetingSession {
	return &domain.MeetingSession{
		PeerID:     r.PeerID,
		MeetingID:  r.MeetingID,
		UserID:     r.UserID,
		CreatedAt:  r.CreatedAt,
		LastSeenAt: r.LastSeenAt,
	}
}

// RedisSessionRepository keeps live sessions in Redis so every relay
// instance resolves the same peer ids. Each session is a JSON value with a
// per-meeting set and a last-seen sorted set as indexes.
type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{client: client}
}

func sessionKey(id domain.PeerID) string {
	return keyPrefix + "session:" + string(id)
}

func meetingSessionsKey(id domain.MeetingID) string {
	return fmt.Sprintf("%smeeting:%d:sessions", keyPrefix, id)
}

func lastSeenKey() string {
	return keyPrefix + "sessions:last_seen"
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.MeetingSession) error {
	data, err := json.Marshal(sessionRecord(*session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	keys := []string{sessionKey(session.PeerID), meetingSessionsKey(session.MeetingID), lastSeenKey()}
	created, err := createScript.Run(ctx, r.client, keys,
		data, string(session.PeerID), score(session.LastSeenAt)).Int()
	if err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("session already exists: %s", session.PeerID)
	}
	return nil
}

func (r *RedisSessionRepository) GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.MeetingSession, error) {
	rec, err := r.load(ctx, peerID)
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, peerID domain.PeerID) error {
	rec, err := r.load(ctx, peerID)
	if err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(peerID))
		pipe.SRem(ctx, meetingSessionsKey(rec.MeetingID), string(peerID))
		pipe.ZRem(ctx, lastSeenKey(), string(peerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	// Another instance may have released it between load and delete.
	if del.Val() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *RedisSessionRepository) Touch(ctx context.Context, peerID domain.PeerID, at time.Time) error {
	rec, err := r.load(ctx, peerID)
	if err != nil {
		return err
	}
	rec.LastSeenAt = at

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var set *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetXX(ctx, sessionKey(peerID), data, redis.KeepTTL)
		pipe.ZAddXX(ctx, lastSeenKey(), redis.Z{Score: score(at), Member: string(peerID)})
		return nil
	})
	if errors.Is(err, redis.Nil) || (set != nil && errors.Is(set.Err(), redis.Nil)) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ListByMeeting(ctx context.Context, meetingID domain.MeetingID) ([]*domain.MeetingSession, error) {
	ids, err := r.client.SMembers(ctx, meetingSessionsKey(meetingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting sessions from Redis: %w", err)
	}
	return r.loadMany(ctx, ids)
}

func (r *RedisSessionRepository) ListIdle(ctx context.Context, before time.Time) ([]*domain.MeetingSession, error) {
	ids, err := r.client.ZRangeByScore(ctx, lastSeenKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(before), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	return r.loadMany(ctx, ids)
}

func (r *RedisSessionRepository) load(ctx context.Context, peerID domain.PeerID) (sessionRecord, error) {
	data, err := r.client.Get(ctx, sessionKey(peerID)).Bytes()
	if err == redis.Nil {
		return sessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return sessionRecord{}, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return sessionRecord{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return rec, nil
}

// loadMany fetches sessions by peer id, skipping ids whose session is gone,
// ordered by creation time.
func (r *RedisSessionRepository) loadMany(ctx context.Context, ids []string) ([]*domain.MeetingSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(domain.PeerID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions from Redis: %w", err)
	}

	out := make([]*domain.MeetingSession, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec sessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec.toDomain())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PeerID < out[j].PeerID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// score maps a time onto the last-seen index. Millisecond precision keeps
// the value exact in a float64.
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
