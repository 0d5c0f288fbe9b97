package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", version, short, buildDate)
}

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags := &Flags{}
	app := &cli.Command{
		Name:      "chatdesk",
		Usage:     "Two-party support chat service",
		UsageText: "chatdesk [global options] command [command options]",
		Version:   build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Value:       "chatdesk.yaml",
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (json, console)",
				Destination: &flags.LogFormat,
			},
			&cli.StringFlag{
				Name:        "db",
				Usage:       "pebble data directory",
				Destination: &flags.DB,
			},
			&cli.StringFlag{
				Name:        "driver",
				Usage:       "storage driver (pebble, sqlite, postgres)",
				Destination: &flags.Driver,
			},
			&cli.StringFlag{
				Name:        "dsn",
				Usage:       "sqlite file or postgres dsn",
				Destination: &flags.DSN,
			},
		},
	}

	app = NewServeCmd(flags).Register(app)
	app = NewTokenCmd(flags).Register(app)
	app = NewReconcileCmd(flags).Register(app)
	app = NewInspectCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chatdesk: %v\n", err)
		os.Exit(1)
	}
}
