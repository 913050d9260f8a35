// Command devstats is the operator CLI: it runs the metrics fetcher from a
// terminal, migrates the database and reads contact form submissions.
//
//	devstats metrics --token ghp_xxx
//	devstats migrate
//	devstats contacts list --limit 20
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
