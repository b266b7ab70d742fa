package cli

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/vetsimlabs/vetrec/internal/output"
)

// PruneCmd deletes sessions older than the retention window
type PruneCmd struct {
	Days int `short:"d" default:"${config_retention_days}" help:"Keep sessions from the last N days (0 deletes everything)"`
}

// Run executes the prune command
func (c *PruneCmd) Run(globals *Globals) error {
	if err := validateFlags(globals); err != nil {
		return err
	}
	if c.Days < 0 {
		return outputErrorCommon(globals, "INVALID_DAYS", "--days must be zero or positive")
	}

	log := newServiceLogger(globals)
	defer log.Sync()

	store, err := openStore(globals, clock.New(), log)
	if err != nil {
		return outputErrorCommon(globals, "STORAGE_UNAVAILABLE", err.Error())
	}
	defer store.Close()

	removed, err := store.DeleteOldSessions(context.Background(), c.Days)
	if err != nil {
		return outputErrorCommon(globals, "PRUNE_FAILED", err.Error())
	}

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).WritePruned(c.Days, removed)
	}
	fmt.Fprintf(globals.Stdout, "Removed %d session(s), kept the last %d day(s)\n", removed, c.Days)
	return nil
}
