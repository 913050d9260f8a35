package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/devstats/internal/github"
)

// =============================================================================
// METRICS COMMAND - run the fetcher for one token
// =============================================================================

func newMetricsCmd(c *cli) *cobra.Command {
	var (
		token    string
		timezone string
		pages    int
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Fetch GitHub metrics for a token and print them as JSON",
		Long: `Runs the same fetcher the dashboard uses, against the GitHub API
configured by GITHUB_API_URL. The token defaults to $GITHUB_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("GITHUB_TOKEN")
			}
			if token == "" {
				return errors.New("a token is required (--token or $GITHUB_TOKEN)")
			}
			if timezone == "" {
				timezone = c.cfg.MetricsTimezone
			}
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}
			if pages <= 0 {
				pages = c.cfg.GitHubMaxPages
			}

			client := github.NewClient(github.ClientConfig{
				APIURL:  c.cfg.GitHubAPIURL,
				Timeout: c.cfg.GitHubTimeout,
				Logger:  c.logger,
			})
			fetcher := github.NewFetcher(client, github.FetcherConfig{
				MaxCommitPages: pages,
				Location:       loc,
				Logger:         c.logger,
			})

			m, err := fetcher.Fetch(cmd.Context(), token)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "GitHub access token")
	cmd.Flags().StringVar(&timezone, "tz", "", "timezone for activity buckets (default $METRICS_TIMEZONE)")
	cmd.Flags().IntVar(&pages, "pages", 0, "commit history pages per repository (default $GITHUB_MAX_COMMIT_PAGES)")
	return cmd
}
