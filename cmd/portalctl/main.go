package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-security-portal/internal/logging"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\n%s\n\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "portalctl"
	app.Usage = "Order and track security services from the command line"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    flagServer,
			Aliases: []string{"s"},
			Usage:   "Base URL of the portal's REST API",
			EnvVars: []string{"SECPORTAL_API_URL"},
			Value:   "http://localhost:8000",
		},
		&cli.StringFlag{
			Name:    flagHome,
			Usage:   "Directory holding the saved session; defaults to ~/.secportal",
			EnvVars: []string{"SECPORTAL_HOME"},
		},
		&cli.BoolFlag{
			Name:  flagVerbose,
			Usage: "Log API calls and token refreshes to stderr",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.Bool(flagVerbose) {
			logging.Setup("DEV")
		} else {
			logging.Quiet()
		}
		return nil
	}
	app.Commands = []*cli.Command{
		loginCommand,
		logoutCommand,
		whoamiCommand,
		servicesCommand,
		requestsCommand,
	}
	return app
}
