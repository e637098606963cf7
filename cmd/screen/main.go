package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"compliance_screener/internal/app/cli"
	"compliance_screener/internal/app/config"
	"compliance_screener/internal/app/di"
	"compliance_screener/internal/platform/logger"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range cli.Commands(load, os.Stdout) {
		commander.Register(c, "")
	}

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// load reads configuration and wires the application. Logs go to stderr so
// that -json output on stdout stays machine readable.
func load(ctx context.Context) (*cli.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	app, err := di.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &cli.Runtime{Screener: app.Compliance, Close: app.Close}
	if app.Universe != nil {
		rt.Universe = app.Universe
	}
	if app.Reports != nil {
		rt.Reports = app.Reports
	}
	return rt, nil
}
