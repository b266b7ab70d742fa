package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vetsimlabs/vetrec/internal/storage"
	"github.com/vetsimlabs/vetrec/internal/tui"
)

// UICmd launches an interactive browser over recorded sessions
type UICmd struct {
	Limit int `short:"n" default:"100" help:"Maximum number of sessions to browse"`
}

// Run executes the ui command
func (c *UICmd) Run(globals *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log := newServiceLogger(globals)
	defer log.Sync()

	globals.Debug("Opening storage for session browser")
	store, err := openStore(globals, clock.New(), log)
	if err != nil {
		return fmt.Errorf("storage unavailable: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	globals.Debug("Loaded %d sessions (backend: %s)", len(sessions), store.Backend())

	loader := func(sessionID string) (*storage.SessionData, error) {
		return store.GetSession(ctx, sessionID)
	}
	model := tui.New(sessions, store.Backend(), loader)

	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
