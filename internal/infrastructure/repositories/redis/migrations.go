package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const schemaVersionKey = keyPrefix + "schema:version"

// Migration upgrades the key layout by one version.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, client *redis.Client) error
	Down    func(ctx context.Context, client *redis.Client) error
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "index sessions by meeting and last seen",
		Up:      reindexSessions,
		Down: func(ctx context.Context, client *redis.Client) error {
			return client.Del(ctx, lastSeenKey()).Err()
		},
	},
}

// SchemaVersion is the version a fully migrated keyspace reports.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies every migration newer than the stored version, recording
// the version after each step so an interrupted run resumes.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	current, err := client.Get(ctx, schemaVersionKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Infow("applying redis migration", "version", m.Version, "name", m.Name)
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
		}
		applied++
	}

	if applied > 0 {
		logger.Infow("redis keyspace migrated", "applied", applied, "version", SchemaVersion())
	}
	return nil
}

// reindexSessions rebuilds the per-meeting and last-seen indexes from the
// session values, so sessions written before the indexes existed are swept.
func reindexSessions(ctx context.Context, client *redis.Client) error {
	iter := client.Scan(ctx, 0, keyPrefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}

		var rec sessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if _, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, meetingSessionsKey(rec.MeetingID), string(rec.PeerID))
			pipe.ZAdd(ctx, lastSeenKey(), redis.Z{Score: score(rec.LastSeenAt), Member: string(rec.PeerID)})
			return nil
		}); err != nil {
			return err
		}
	}
	return iter.Err()
}
