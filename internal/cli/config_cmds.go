package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vetsimlabs/vetrec/internal/config"
	"github.com/vetsimlabs/vetrec/internal/output"
)

// ConfigShowCmd shows the effective configuration
type ConfigShowCmd struct{}

// configOutput is the NDJSON shape of the effective configuration
type configOutput struct {
	Type          string                `json:"type"`
	SchemaVersion int                   `json:"schemaVersion"`
	Format        string                `json:"format"`
	Quiet         bool                  `json:"quiet"`
	Verbose       bool                  `json:"verbose"`
	Listen        string                `json:"listen"`
	DevtoolsURL   string                `json:"devtools_url,omitempty"`
	Storage       config.StorageConfig  `json:"storage"`
	Defaults      config.DefaultsConfig `json:"defaults"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config

	if globals.Format == "ndjson" {
		out := configOutput{
			Type:          "config",
			SchemaVersion: output.SchemaVersion,
			Format:        cfg.Format,
			Quiet:         cfg.Quiet,
			Verbose:       cfg.Verbose,
			Listen:        cfg.Listen,
			DevtoolsURL:   cfg.DevtoolsURL,
			Storage:       cfg.Storage,
			Defaults:      cfg.Defaults,
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	fmt.Fprintf(globals.Stdout, "  format: %s\n", cfg.Format)
	fmt.Fprintf(globals.Stdout, "  quiet: %t\n", cfg.Quiet)
	fmt.Fprintf(globals.Stdout, "  verbose: %t\n", cfg.Verbose)
	fmt.Fprintf(globals.Stdout, "  listen: %s\n", cfg.Listen)
	if cfg.DevtoolsURL != "" {
		fmt.Fprintf(globals.Stdout, "  devtools_url: %s\n", cfg.DevtoolsURL)
	}
	fmt.Fprintln(globals.Stdout, "Storage:")
	fmt.Fprintf(globals.Stdout, "  dir: %s\n", cfg.Storage.Dir)
	if cfg.Storage.DBPath != "" {
		fmt.Fprintf(globals.Stdout, "  db_path: %s\n", cfg.Storage.DBPath)
	}
	fmt.Fprintf(globals.Stdout, "  quota_bytes: %d\n", cfg.Storage.QuotaBytes)
	fmt.Fprintln(globals.Stdout, "Defaults:")
	fmt.Fprintf(globals.Stdout, "  list_limit: %d\n", cfg.Defaults.ListLimit)
	fmt.Fprintf(globals.Stdout, "  retention_days: %d\n", cfg.Defaults.RetentionDays)
	fmt.Fprintf(globals.Stdout, "  download_grace: %s\n", cfg.Defaults.DownloadGrace)
	return nil
}

// ConfigPathCmd shows which config file is in use
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.UsedConfigFile()

	if globals.Format == "ndjson" {
		out := map[string]interface{}{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          path,
			"found":         path != "",
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (using defaults)")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a sample config file
type ConfigGenerateCmd struct{}

const sampleConfig = `# vetrec configuration file
# Place at ~/.vetrec.yaml or ~/.config/vetrec/vetrec.yaml

# Output format: ndjson (for AI agents) or text
format: ndjson

# Address for the capture endpoint
listen: 127.0.0.1:8791

# Chrome DevTools websocket URL, enables screenshots and evaluation
# devtools_url: ws://127.0.0.1:9222/devtools/browser/...

storage:
  # Root directory for session storage (one directory per session)
  # dir: ~/.vetrec/sessions
  # SQLite fallback location (default: sessions.db next to dir)
  # db_path: ~/.vetrec/sessions.db
  # Storage budget in bytes, 0 disables the quota
  quota_bytes: 536870912

defaults:
  # Sessions shown by 'vetrec list'
  list_limit: 20
  # Days kept by 'vetrec prune' and quota reclamation
  retention_days: 7
  # How long download links stay valid after a session ends
  download_grace: 60s
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	fmt.Fprint(globals.Stdout, sampleConfig)
	return nil
}
