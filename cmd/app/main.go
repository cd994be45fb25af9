// Command app serves portfolio history over HTTP and keeps it current from
// ledger events, the job queue and the periodic scheduler.
package main

import (
	"flag"
	"fmt"
	"os"

	"PortfolioHistory/internal/di"
	"PortfolioHistory/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "portfolio-history: %v\n", err)
		os.Exit(1)
	}
}

// run blocks until SIGINT or SIGTERM. Until the logger exists, failures go
// to stderr.
func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return app.Run()
}
