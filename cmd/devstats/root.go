package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/devstats/internal/config"
	"github.com/sakif/devstats/internal/logging"
)

// cli holds what every subcommand needs, filled in by the root
// PersistentPreRunE.
type cli struct {
	cfg    config.Config
	logger *slog.Logger
	dbPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "devstats",
		Short:         "DevStats operator tools",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.dbPath != "" {
				cfg.DBPath = c.dbPath
			}
			c.cfg = cfg
			// Logs go to stderr so stdout stays clean for JSON output.
			c.logger = logging.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "database path (default $DB_PATH)")

	root.AddCommand(
		newMetricsCmd(c),
		newMigrateCmd(c),
		newContactsCmd(c),
	)
	return root
}
