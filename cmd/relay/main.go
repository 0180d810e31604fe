package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"meetrelay/pkg/config"
	"meetrelay/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "meetrelay",
		Short:         "Meeting presence and signaling relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml",
		"YAML config file; a missing file falls back to defaults")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env",
		"dotenv file loaded before MEETRELAY_* overrides are applied")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

// load reads the env file, then the config, then builds the logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	zapLogger, err := logger.NewWithConfig(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, zapLogger, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
