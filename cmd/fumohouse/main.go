package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"fumohouse/cmd/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		slog.Error("fumohouse.failed", "err", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "fumohouse",
		Usage: "Account and session server for fumohouse",
		Commands: []*cli.Command{
			serveCmd(),
			purgeCmd(),
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server and the expired-session purger",
		Action: func(c *cli.Context) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg)
			slog.SetDefault(log)

			a, err := app.New(c.Context, cfg, log)
			if err != nil {
				return err
			}
			return a.Run(c.Context)
		},
	}
}

func purgeCmd() *cli.Command {
	return &cli.Command{
		Name:  "purge-sessions",
		Usage: "Delete expired sessions once and exit",
		Action: func(c *cli.Context) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg)

			a, err := app.New(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.PurgeExpired(c.Context)
			if err != nil {
				return err
			}
			log.Info("sessions.purged", "count", n)
			return nil
		},
	}
}
