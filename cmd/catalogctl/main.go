// Command catalogctl administers the procurement catalog from the shell:
// loading and exporting shop price lists and managing the read caches of
// running servers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "catalogctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "catalogctl",
		Usage:   "manage shop price lists and catalog caches",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"CATALOGCTL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			loadCommand(),
			exportCommand(),
			runsCommand(),
			{
				Name:  "cache",
				Usage: "inspect and flush the read caches of running servers",
				Subcommands: []*cli.Command{
					cacheFlushCommand(),
					cacheStatsCommand(),
				},
			},
		},
	}
}
