// Command commutemap serves the commute map sessions and ships the offline
// spread and style tools.
package main

import (
	"os"

	"github.com/rrweller/finn-apartment-finder/internal/interfaces/cli"
)

// Set via -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
