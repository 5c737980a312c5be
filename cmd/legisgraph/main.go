// Command line client for the LegisGraph platform.
package main

import (
	"os"

	"github.com/turtacn/LegisGraph/internal/interfaces/cli"
)

// Build metadata, injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = gitCommit
	cli.BuildDate = buildDate
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
