package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewUnlockCmd creates the unlock subcommand.
func NewUnlockCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "unlock <handle>",
		Short: "Clear the login lockout of a principal",
		Long: `Clears the failed-login counter and any active lock of one principal.
Lockouts are only shared between processes through Redis, so redis.addr
must be set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if loaded.Settings.Redis.Addr == "" {
				return oops.Code("CONFIG_INVALID").
					Errorf("redis.addr is required; without Redis a lockout lives only in the process that recorded it")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := newLogger(cmd, loaded.Settings)
			rt, err := openRuntime(ctx, loaded.Settings, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.UnlockLogin(ctx, args[0]); err != nil {
				return oops.Code("UNLOCK_FAILED").With("handle", args[0]).Wrap(err)
			}
			cmd.Printf("Login lock cleared for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for database and Redis operations (e.g., 30s, 1m)")

	return cmd
}
