package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/vetsimlabs/vetrec/internal/domain"
	"github.com/vetsimlabs/vetrec/internal/filter"
	"github.com/vetsimlabs/vetrec/internal/output"
)

// ListCmd lists recorded sessions
type ListCmd struct {
	Limit int      `short:"n" default:"${config_list_limit}" help:"Maximum number of sessions to list"`
	Where []string `short:"w" help:"Filter clause like 'status=completed' or 'scenario~intake' (repeatable, AND logic)"`
}

// Run executes the list command
func (c *ListCmd) Run(globals *Globals) error {
	if err := validateFlags(globals); err != nil {
		return err
	}

	where, err := filter.NewWhereFilter(c.Where)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_WHERE", err.Error(), "use field=value with =, !=, ~, !~, ^, $")
	}

	log := newServiceLogger(globals)
	defer log.Sync()

	store, err := openStore(globals, clock.New(), log)
	if err != nil {
		return outputErrorCommon(globals, "STORAGE_UNAVAILABLE", err.Error())
	}
	defer store.Close()

	sessions, err := store.ListSessions(context.Background(), c.Limit)
	if err != nil {
		return outputErrorCommon(globals, "LIST_FAILED", err.Error())
	}

	sessions = lo.Filter(sessions, func(m domain.Session, _ int) bool {
		return where.Match(&m)
	})

	if globals.Format == "ndjson" {
		w := output.NewNDJSONWriter(globals.Stdout)
		for _, m := range sessions {
			if err := w.WriteSession(m); err != nil {
				return err
			}
		}
		return nil
	}

	if len(sessions) == 0 {
		fmt.Fprintln(globals.Stdout, "No sessions recorded")
		return nil
	}

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("SESSION", "SCENARIO", "STATUS", "RESULT", "STARTED", "DURATION")
	for _, m := range sessions {
		table.Append(sessionRow(m))
	}
	table.Render()

	if f, ok := globals.Stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) && !globals.Quiet {
		fmt.Fprintf(globals.Stdout, "%d session(s)\n", len(sessions))
	}
	return nil
}

func sessionRow(m domain.Session) []string {
	result := "-"
	if m.Evaluation != nil {
		result = string(m.Evaluation.Result)
	}
	duration := "-"
	if m.Duration > 0 {
		duration = (time.Duration(m.Duration) * time.Millisecond).String()
	}
	return []string{
		m.SessionID,
		m.ScenarioID,
		string(m.Status),
		result,
		humanize.Time(time.UnixMilli(m.StartTime)),
		duration,
	}
}
