package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/alebarre/credauth/internal/config"
	"github.com/alebarre/credauth/internal/logging"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFiles   []string
)

// NewRootCmd creates the root command for the credauthd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credauthd",
		Short: "credauthd - credential and session store operations",
		Long: `credauthd manages the storage behind the credauth engine: it applies
database migrations, seeds the first administrator, purges expired session
tokens and one-time codes, and prints the effective configuration.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (YAML)")
	flags.StringSliceVar(&envFiles, "env-file", nil, ".env file loaded before the environment is read (repeatable)")

	// Dotted flags override the config key of the same name.
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.String("redis.addr", "", "Redis address; one-time codes and throttles use Redis when set")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.String("log.format", "json", "log format (json, text)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedAdminCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewUnlockCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadSettings layers defaults, the config file, the environment and the
// command's flags. Without --env-file, ./.env is read when present.
func loadSettings(cmd *cobra.Command) (*config.Loaded, error) {
	if len(envFiles) == 0 {
		if err := config.LoadDefaultEnvFile(); err != nil {
			return nil, oops.Code("CONFIG_ENV_FILE").With("path", ".env").Wrap(err)
		}
	}
	return config.Load(config.Options{
		Path:     configFile,
		EnvFiles: envFiles,
		Flags:    cmd.Flags(),
	})
}

func newLogger(cmd *cobra.Command, s config.Settings) *slog.Logger {
	return logging.Setup("credauthd", version, s.Log.Format, logging.ParseLevel(s.Log.Level), cmd.ErrOrStderr())
}
