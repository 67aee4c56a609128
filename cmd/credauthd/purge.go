package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired session tokens and one-time codes",
		Long: `Deletes rotation tokens and one-time codes whose expiry has passed.
Suitable for a periodic job; revoked but unexpired tokens are kept so reuse
is still detected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := newLogger(cmd, loaded.Settings)
			rt, err := openRuntime(ctx, loaded.Settings, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			tokens, codes, err := rt.engine.PurgeExpired(ctx)
			if err != nil {
				return oops.Code("PURGE_FAILED").Wrap(err)
			}
			logger.InfoContext(ctx, "purge finished", "tokens", tokens, "codes", codes)
			cmd.Printf("Purged %d session tokens and %d one-time codes\n", tokens, codes)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}
