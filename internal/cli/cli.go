// Package cli defines the vetrec command tree. Every command supports both
// ndjson (for AI agents and scripts) and text (for humans) output.
package cli

import (
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vetsimlabs/vetrec/internal/config"
	"github.com/vetsimlabs/vetrec/internal/storage"
)

// Version info, injected at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// CLI is the top-level command structure for kong
type CLI struct {
	Format  string `help:"Output format: ndjson or text" enum:"ndjson,text" default:"${config_format}"`
	Quiet   bool   `short:"q" help:"Suppress informational output (ndjson only)"`
	Verbose bool   `short:"v" help:"Enable verbose debug logging"`

	Serve      ServeCmd      `cmd:"" help:"Run the capture agent: accept events over HTTP and persist sessions"`
	List       ListCmd       `cmd:"" help:"List recorded sessions, newest first"`
	Show       ShowCmd       `cmd:"" help:"Show one session with its events and screenshots"`
	Export     ExportCmd     `cmd:"" help:"Export a session summary to a JSON file"`
	Prune      PruneCmd      `cmd:"" help:"Delete sessions older than the retention window"`
	UI         UICmd         `cmd:"" name:"ui" help:"Browse recorded sessions interactively"`
	Schema     SchemaCmd     `cmd:"" help:"Output JSON Schema for vetrec NDJSON record types"`
	Completion CompletionCmd `cmd:"" help:"Generate shell completions"`
	Update     UpdateCmd     `cmd:"" help:"Show how to upgrade vetrec"`
	Config     ConfigCmd     `cmd:"" help:"Inspect or generate configuration"`
}

// ConfigCmd groups configuration subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is in use"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample config file"`
}

// Globals carries resolved flags and IO streams to every command
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config

	logger *agentLogger
}

// NewGlobalsWithConfig resolves globals from parsed flags with config
// fallbacks already applied by kong defaults.
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	g := &Globals{
		Format:  c.Format,
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
	g.logger = newAgentLogger(g)
	return g
}

// Debug logs a verbose diagnostic line when --verbose is set
func (g *Globals) Debug(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(format, args...)
	}
}

// openStore selects the storage backend from config. Commands that read or
// write sessions all go through here so they agree on the backend choice.
func openStore(globals *Globals, clk clock.Clock, log *zap.SugaredLogger) (*storage.Manager, error) {
	cfg := globals.Config
	return storage.Open(storage.Config{
		Dir:           cfg.Storage.Dir,
		DBPath:        cfg.Storage.DBPath,
		QuotaBytes:    cfg.Storage.QuotaBytes,
		RetentionDays: cfg.Defaults.RetentionDays,
	}, clk, log)
}
