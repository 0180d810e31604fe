package repositories

import (
	"context"
	"errors"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/repositories/gormstore"
	"meetrelay/internal/infrastructure/repositories/memory"
	redisrepo "meetrelay/internal/infrastructure/repositories/redis"
	"meetrelay/pkg/cache"
	"meetrelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory opens the configured backends and assembles the store.
// Meetings, users and messages live in the relational database; sessions
// move to Redis when it is reachable so all instances share them.
type RepositoryFactory struct {
	db          *gorm.DB
	redisClient *redis.Client
	userCache   *cache.Cache[domain.UserID, *domain.User]
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to the configured backends. An unreachable
// Redis falls back to keeping sessions in the database.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{logger: logger}

	if cfg.Database.Driver == "sqlite" {
		db, err := gormstore.Open(cfg.Database.DSN, cfg.Database.Debug)
		if err != nil {
			return nil, err
		}
		if err := gormstore.Migrate(db); err != nil {
			gormstore.Close(db)
			return nil, err
		}
		factory.db = db
		logger.Infow("using sqlite store", "dsn", cfg.Database.DSN)
	} else {
		logger.Info("using memory store")
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Migrate:  true,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, keeping sessions in the local store",
				"error", err,
			)
		} else {
			factory.redisClient = client
		}
	}

	if cfg.Database.UserCacheTTL > 0 {
		factory.userCache = cache.New[domain.UserID, *domain.User](cfg.Database.UserCacheTTL)
	}

	return factory, nil
}

// Store assembles the repositories for the connected backends.
func (f *RepositoryFactory) Store() ports.Store {
	var store ports.Store
	if f.db != nil {
		store = gormstore.NewStore(f.db)
	} else {
		store = memory.NewStore()
	}
	if f.redisClient != nil {
		store.Sessions = redisrepo.NewRedisSessionRepository(f.redisClient)
	}
	if f.userCache != nil {
		store.Users = NewCachedUserRepository(store.Users, f.userCache)
	}
	return store
}

// RedisClient is nil when Redis is disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close releases every backend connection.
func (f *RepositoryFactory) Close() error {
	if f.userCache != nil {
		f.userCache.Stop()
	}

	var errs []error
	if f.redisClient != nil {
		errs = append(errs, f.redisClient.Close())
	}
	if f.db != nil {
		errs = append(errs, gormstore.Close(f.db))
	}
	return errors.Join(errs...)
}
