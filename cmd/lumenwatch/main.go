package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "lumenwatch",
		Usage: "Stellar payment feed service CLI",
		Description: `A command-line tool for querying and debugging the lumenwatch service.

Use this CLI to backfill payment history, refresh balances, manage live
watchers, and follow an account's payment stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			paymentsCommand(),
			balancesCommand(),
			{
				Name:  "watch",
				Usage: "Live watcher commands",
				Subcommands: []*cli.Command{
					watchStartCommand(),
					watchStopCommand(),
					watchStatusCommand(),
					watchStreamCommand(),
				},
			},
			healthCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"LUMENWATCH_SERVER_URL"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
