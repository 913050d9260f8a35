package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	sqliteRepo "github.com/sakif/devstats/internal/repository/sqlite"
	"github.com/sakif/devstats/internal/service"
)

func (c *cli) openDB() (*sqliteRepo.DB, error) {
	if c.cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return sqliteRepo.New(c.cfg.DBPath)
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long:  "Migrations also run on server start; this is for deploy pipelines that migrate first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", c.cfg.DBPath)
			return nil
		},
	}
}

// =============================================================================
// CONTACTS COMMAND
// =============================================================================

func newContactsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Read contact form submissions",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List contact messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			msgs, err := service.NewContactService(db.Contacts(), c.logger).List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECEIVED\tFROM\tSUBJECT\tMESSAGE")
			for _, m := range msgs {
				fmt.Fprintf(tw, "%s\t%s <%s>\t%s\t%s\n",
					m.CreatedAt.Format("2006-01-02 15:04"), m.Name, m.Email, m.Subject, preview(m.Message, 60))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", service.DefaultContactLimit, "maximum messages to show")
	list.Flags().IntVar(&offset, "offset", 0, "messages to skip")

	cmd.AddCommand(list)
	return cmd
}

// preview flattens whitespace and cuts s to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
