package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"

	"github.com/vetsimlabs/vetrec/internal/output"
	"github.com/vetsimlabs/vetrec/internal/storage"
)

// ExportCmd writes a session summary to a JSON file
type ExportCmd struct {
	SessionID string `arg:"" help:"Session ID to export"`
	Out       string `short:"o" help:"Output path (default: suggested filename in the current directory)"`
}

// Run executes the export command
func (c *ExportCmd) Run(globals *Globals) error {
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

	bundle, err := store.ExportSession(context.Background(), c.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return outputErrorCommon(globals, "SESSION_NOT_FOUND", fmt.Sprintf("no session with id %s", c.SessionID), "run 'vetrec list' to see recorded sessions")
		}
		return outputErrorCommon(globals, "EXPORT_FAILED", err.Error())
	}

	out := c.Out
	if out == "" {
		out = bundle.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return outputErrorCommon(globals, "EXPORT_FAILED", err.Error())
		}
	}
	if err := os.WriteFile(out, bundle.Payload, 0o644); err != nil {
		return outputErrorCommon(globals, "EXPORT_FAILED", err.Error())
	}

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WriteExport(c.SessionID, out, len(bundle.Payload))
	}
	fmt.Fprintf(globals.Stdout, "Exported %s to %s (%s)\n", c.SessionID, out, humanize.Bytes(uint64(len(bundle.Payload))))
	return nil
}
