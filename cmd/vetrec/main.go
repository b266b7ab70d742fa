package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"github.com/vetsimlabs/vetrec/internal/cli"
	"github.com/vetsimlabs/vetrec/internal/config"
)

const quickStart = `vetrec - training session capture for AI agents

Quick start:
  vetrec serve                          Start the capture agent
  vetrec list                           List recorded sessions
  vetrec show SESSION_ID                Inspect one session

For help:
  vetrec --help                         All commands and flags
  vetrec schema                         Machine-readable output docs (for AI agents)
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format":         cfg.Format,
		"config_listen":         cfg.Listen,
		"config_grace":          cfg.Defaults.DownloadGrace,
		"config_list_limit":     strconv.Itoa(cfg.Defaults.ListLimit),
		"config_retention_days": strconv.Itoa(cfg.Defaults.RetentionDays),
	}

	ctx := kong.Parse(&c,
		kong.Name("vetrec"),
		kong.Description("vetrec: Record and evaluate simulation training sessions\n\nAI agents: run 'vetrec schema' for machine-readable output documentation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
