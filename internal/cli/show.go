package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vetsimlabs/vetrec/internal/output"
	"github.com/vetsimlabs/vetrec/internal/storage"
)

// ShowCmd shows a single session with its event stream
type ShowCmd struct {
	SessionID string `arg:"" help:"Session ID to show"`
}

// Run executes the show command
func (c *ShowCmd) Run(globals *Globals) error {
	if err := validateFlags(globals); err != nil {
		return err
	}

	log := newServiceLogger(globals)
	defer log.Sync()

	store, err := openStore(globals, clock.New(), log)
	if err != nil {
		return outputErrorCommon(globals, "STORAGE_UNAVAILABLE", err.Error())
	}
	defer store.Close()

	data, err := store.GetSession(context.Background(), c.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return outputErrorCommon(globals, "SESSION_NOT_FOUND", fmt.Sprintf("no session with id %s", c.SessionID), "run 'vetrec list' to see recorded sessions")
		}
		return outputErrorCommon(globals, "SHOW_FAILED", err.Error())
	}

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WriteSessionDetail(data.Meta, data.Events, len(data.Screenshots))
	}

	meta := data.Meta
	fmt.Fprintf(globals.Stdout, "Session:   %s\n", meta.SessionID)
	fmt.Fprintf(globals.Stdout, "Scenario:  %s", meta.ScenarioID)
	if meta.ScenarioName != "" {
		fmt.Fprintf(globals.Stdout, " (%s)", meta.ScenarioName)
	}
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintf(globals.Stdout, "Status:    %s\n", meta.Status)
	fmt.Fprintf(globals.Stdout, "Started:   %s\n", time.UnixMilli(meta.StartTime).UTC().Format(time.RFC3339))
	if meta.Duration > 0 {
		fmt.Fprintf(globals.Stdout, "Duration:  %s\n", time.Duration(meta.Duration)*time.Millisecond)
	}
	if meta.Evaluation != nil {
		fmt.Fprintf(globals.Stdout, "Result:    %s (%d met, %d failed)\n",
			meta.Evaluation.Result, meta.Evaluation.CriteriaMet, meta.Evaluation.CriteriaFailed)
	}
	fmt.Fprintf(globals.Stdout, "Events:    %d (%d screenshots)\n", len(data.Events), len(data.Screenshots))

	for _, ev := range data.Events {
		line := fmt.Sprintf("  %8dms  %-9s %s", ev.Timestamp, ev.Type, ev.Selector)
		if ev.Key != "" {
			line += fmt.Sprintf(" key=%s", ev.Key)
		}
		if ev.ScreenshotRef != "" {
			line += fmt.Sprintf(" shot=%s", ev.ScreenshotRef)
		}
		fmt.Fprintln(globals.Stdout, line)
	}
	return nil
}
