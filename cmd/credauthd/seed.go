package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// Default timeout for commands that talk to the stores.
const defaultTimeout = 30 * time.Second

type seedConfig struct {
	handle   string
	password string
	timeout  time.Duration
}

// NewSeedAdminCmd creates the seed-admin subcommand.
func NewSeedAdminCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first administrator",
		Long: `Creates an administrator credential when no credential holds the admin
role. Running it again once an administrator exists changes nothing.

The handle and password default to seed.admin_handle and seed.admin_password
from the configuration (CREDAUTH_SEED__ADMIN_PASSWORD in the environment).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedAdmin(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.handle, "handle", "", "administrator handle (e-mail address)")
	cmd.Flags().StringVar(&cfg.password, "password", "", "administrator password")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeedAdmin(cmd *cobra.Command, cfg *seedConfig) error {
	loaded, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	s := loaded.Settings

	handle, password := cfg.handle, cfg.password
	if handle == "" {
		handle = s.Seed.AdminHandle
	}
	if password == "" {
		password = s.Seed.AdminPassword
	}
	if handle == "" || password == "" {
		return oops.Code("SEED_INVALID").Errorf("an administrator handle and password are required (--handle, --password)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	logger := newLogger(cmd, s)
	rt, err := openRuntime(ctx, s, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	created, err := rt.engine.SeedAdmin(ctx, handle, password)
	if err != nil {
		return oops.Code("SEED_FAILED").With("handle", handle).Wrap(err)
	}
	if !created {
		cmd.Println("An administrator already exists, skipping seed")
		return nil
	}
	logger.InfoContext(ctx, "administrator seeded", "handle", handle)
	cmd.Printf("Administrator %s created\n", handle)
	return nil
}
