package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/repositories/gormstore"
	"meetrelay/pkg/validation"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// seedFile mirrors the users and meetings owned by the records application,
// for local development against the sqlite store.
type seedFile struct {
	Users []struct {
		ID    int64  `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	} `yaml:"users"`
	Meetings []struct {
		ID        int64   `yaml:"id"`
		Title     string  `yaml:"title"`
		CreatorID int64   `yaml:"creator_id"`
		Readers   []int64 `yaml:"readers"`
		Writers   []int64 `yaml:"writers"`
	} `yaml:"meetings"`
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "Load users and meetings from a YAML fixture into the sqlite store",
		Example: `  meetrelay seed --file configs/seed.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, err := opts.load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			if cfg.Database.Driver != "sqlite" {
				return fmt.Errorf("seed requires database.driver=sqlite, got %q", cfg.Database.Driver)
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			var fixture seedFile
			if err := yaml.Unmarshal(data, &fixture); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}

			db, err := gormstore.Open(cfg.Database.DSN, cfg.Database.Debug)
			if err != nil {
				return err
			}
			defer gormstore.Close(db)
			if err := gormstore.Migrate(db); err != nil {
				return err
			}

			users, meetings, err := applySeed(cmd.Context(), gormstore.NewStore(db), fixture)
			if err != nil {
				return err
			}
			zapLogger.Sugar().Infow("seed applied", "users", users, "meetings", meetings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.yaml", "YAML fixture to load")
	return cmd
}

func applySeed(ctx context.Context, store ports.Store, fixture seedFile) (int, int, error) {
	for _, u := range fixture.Users {
		if err := validation.ValidateEmail(u.Email); err != nil {
			return 0, 0, fmt.Errorf("user %d: %w", u.ID, err)
		}
		user := &domain.User{ID: domain.UserID(u.ID), Name: u.Name, Email: u.Email}
		if err := store.Users.Create(ctx, user); err != nil {
			return 0, 0, fmt.Errorf("user %d: %w", u.ID, err)
		}
	}

	for _, m := range fixture.Meetings {
		meeting := &domain.Meeting{
			ID:        domain.MeetingID(m.ID),
			Title:     m.Title,
			CreatorID: domain.UserID(m.CreatorID),
			CreatedAt: time.Now().UTC(),
		}
		for _, id := range m.Readers {
			meeting.Participants = append(meeting.Participants, domain.Participant{UserID: domain.UserID(id), Access: domain.AccessRead})
		}
		for _, id := range m.Writers {
			meeting.Participants = append(meeting.Participants, domain.Participant{UserID: domain.UserID(id), Access: domain.AccessWrite})
		}
		if err := store.Meetings.Create(ctx, meeting); err != nil {
			return 0, 0, fmt.Errorf("meeting %d: %w", m.ID, err)
		}
	}
	return len(fixture.Users), len(fixture.Meetings), nil
}
