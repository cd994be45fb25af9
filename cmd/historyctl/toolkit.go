package main

import (
	"encoding/json"
	"fmt"
	"os"

	"PortfolioHistory/internal/di"
	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/config"
	"PortfolioHistory/pkg/util"

	"github.com/google/subcommands"
)

// withToolkit loads the config, wires the use cases and runs fn.
func withToolkit(fn func(tk *di.Toolkit) subcommands.ExitStatus) subcommands.ExitStatus {
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	// Command output goes to stdout; keep the service log quiet.
	cfg.Log.Level = "warn"
	cfg.Log.Output = "stderr"
	cfg.Log.Collector.Enabled = false

	tk, err := di.InitializeToolkit(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := tk.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: close: %v\n", err)
		}
	}()
	return fn(tk)
}

// parseDimensions reads a comma separated list; empty means all.
func parseDimensions(s string) ([]models.Dimension, error) {
	var dims []models.Dimension
	for _, name := range util.SplitList(s) {
		d, err := models.ParseDimension(name)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func dimensionNames(dims []models.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = d.String()
	}
	return out
}

func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
