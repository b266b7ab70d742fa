package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vetsimlabs/vetrec/internal/browser"
	"github.com/vetsimlabs/vetrec/internal/evaluator"
	"github.com/vetsimlabs/vetrec/internal/output"
	"github.com/vetsimlabs/vetrec/internal/recorder"
	"github.com/vetsimlabs/vetrec/internal/server"
)

// ServeCmd runs the capture agent until interrupted
type ServeCmd struct {
	Listen   string `short:"l" default:"${config_listen}" help:"Address for the capture endpoint"`
	Devtools string `help:"Chrome DevTools websocket URL (enables screenshots and criteria evaluation)"`
	Grace    string `default:"${config_grace}" help:"How long download links stay valid after a session ends"`
}

// Run executes the serve command
func (c *ServeCmd) Run(globals *Globals) error {
	if err := validateFlags(globals); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grace, err := time.ParseDuration(c.Grace)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_GRACE", fmt.Sprintf("invalid grace duration: %s", err))
	}

	log := newServiceLogger(globals)
	defer log.Sync()
	clk := clock.New()

	store, err := openStore(globals, clk, log)
	if err != nil {
		return outputErrorCommon(globals, "STORAGE_UNAVAILABLE", err.Error())
	}
	defer store.Close()

	devtools := c.Devtools
	if devtools == "" {
		devtools = globals.Config.DevtoolsURL
	}

	var capturer recorder.Capturer
	var probe evaluator.Probe
	if devtools != "" {
		globals.Debug("Connecting to DevTools at %s", devtools)
		client, err := browser.Connect(ctx, devtools, log)
		if err != nil {
			return outputErrorCommon(globals, "DEVTOOLS_UNAVAILABLE", err.Error(),
				"check the --devtools URL or omit it to record without screenshots")
		}
		defer client.Close()
		capturer = client
		probe = client
	} else if !globals.Quiet && globals.Format == "text" {
		fmt.Fprintln(globals.Stderr, "No DevTools URL: recording without screenshots, evaluation will report unknown")
	}

	eval := evaluator.New(probe, log)
	rec := recorder.New(store, capturer, eval, clk, log)
	srv := server.New(rec, store, store.Backend(), c.Listen, grace, clk, log)

	if globals.Format == "ndjson" {
		output.NewNDJSONWriter(globals.Stdout).WriteReady(c.Listen, store.Backend(), clk.Now().UTC().Format(time.RFC3339))
	} else if !globals.Quiet {
		fmt.Fprintf(globals.Stderr, "Listening on %s (backend: %s)\n", c.Listen, store.Backend())
		fmt.Fprintln(globals.Stderr, "Press Ctrl+C to stop")
	}

	if err := srv.Start(ctx); err != nil {
		return outputErrorCommon(globals, "SERVE_FAILED", err.Error())
	}
	return nil
}
