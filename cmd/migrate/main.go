package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dhawalhost/riskregister/internal/config"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/migrations"
	"github.com/dhawalhost/riskregister/pkg/database"
	"github.com/dhawalhost/riskregister/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, adminName, adminEmail string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply database migrations and optionally seed the first admin",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewConnection(cfg.DatabaseConnection())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			ran, err := migrations.Apply(ctx, db, log)
			if err != nil {
				return err
			}
			log.Info("Migrations complete", zap.Int("applied", len(ran)), zap.String("driver", cfg.Database.Driver))

			if adminName == "" {
				return nil
			}
			ident, created, err := bootstrapAdmin(ctx, identity.NewStore(db), adminName, adminEmail, time.Now().UTC())
			if err != nil {
				return err
			}
			if created {
				log.Info("Created admin", zap.String("id", ident.ID), zap.String("username", ident.Username))
			} else {
				log.Info("Admin already exists", zap.String("id", ident.ID), zap.String("username", ident.Username))
			}
			fmt.Fprintln(cmd.OutOrStdout(), ident.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("RISK_CONFIG"), "Path to a YAML config file")
	cmd.Flags().StringVar(&adminName, "bootstrap-admin", "", "Username of an admin to create if missing")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "Email for the bootstrap admin")
	return cmd
}

// bootstrapAdmin creates an active Admin named username unless one exists.
// An existing user with another role is an error.
func bootstrapAdmin(ctx context.Context, store identity.Store, username, email string, now time.Time) (identity.Identity, bool, error) {
	existing, err := store.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.RoleKind() != identity.KindAdmin {
			return existing, false, fmt.Errorf("user %q exists with role %s", username, existing.RoleKind())
		}
		return existing, false, nil
	case !errors.Is(err, identity.ErrNotFound):
		return identity.Identity{}, false, err
	}

	ident := identity.Identity{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Role:      identity.Admin{},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(ctx, ident); err != nil {
		return identity.Identity{}, false, err
	}
	return ident, true, nil
}
