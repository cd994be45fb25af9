// Command historyctl inspects and maintains portfolio history from the shell.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "config/config.yaml", "config file path")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&statusCmd{}, "history")
	commander.Register(&syncCmd{}, "history")
	commander.Register(&rebuildCmd{}, "history")
	commander.Register(&positionsCmd{}, "holdings")
	commander.Register(&queueCmd{}, "jobs")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commander.Execute(ctx)
	stop()
	os.Exit(int(code))
}
