package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// Migrate runs pending key-layout migrations after connecting.
	Migrate bool
}

// NewRedisClient connects, verifies the connection and optionally migrates.
func NewRedisClient(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Address, err)
	}

	if opts.Migrate {
		if err := Migrate(pingCtx, client, logger); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infow("connected to Redis",
		"address", opts.Address,
		"db", opts.DB,
		"pool_size", opts.PoolSize,
	)
	return client, nil
}
