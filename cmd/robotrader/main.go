// Command robotrader runs the multi-asset trading bot.
package main

import (
	"context"
	"fmt"
	"os"

	"robotrader/internal/cli"
)

// Set by -ldflags at build time.
var (
	version   = ""
	buildDate = ""
)

func main() {
	if version != "" {
		cli.Version = version
	}
	if buildDate != "" {
		cli.BuildDate = buildDate
	}

	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
