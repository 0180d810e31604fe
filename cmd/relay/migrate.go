package main

import (
	"fmt"

	"meetrelay/internal/infrastructure/repositories/gormstore"
	redisrepo "meetrelay/internal/infrastructure/repositories/redis"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database and redis key-layout migrations",
		Example: `  meetrelay migrate
  meetrelay migrate --config /etc/meetrelay/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, err := opts.load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()
			log := zapLogger.Sugar()

			if cfg.Database.Driver == "sqlite" {
				db, err := gormstore.Open(cfg.Database.DSN, cfg.Database.Debug)
				if err != nil {
					return err
				}
				defer gormstore.Close(db)
				if err := gormstore.Migrate(db); err != nil {
					return err
				}
				log.Infow("database migrated", "dsn", cfg.Database.DSN)
			}

			if cfg.Redis.Enabled {
				// Unlike serve, an unreachable redis is an error here.
				client, err := redisrepo.NewRedisClient(cmd.Context(), redisrepo.Options{
					Address:  cfg.Redis.Address,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
					PoolSize: cfg.Redis.PoolSize,
					Migrate:  true,
				}, log)
				if err != nil {
					return fmt.Errorf("redis migration failed: %w", err)
				}
				client.Close()
			}
			return nil
		},
	}
}
