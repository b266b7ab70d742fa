package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	// Agent endpoints
	Listen      string `mapstructure:"listen"`
	DevtoolsURL string `mapstructure:"devtools_url"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// StorageConfig controls the session storage backends
type StorageConfig struct {
	// Dir is the root of the hierarchical backend; the sqlite fallback
	// lives next to it unless db_path overrides.
	Dir        string `mapstructure:"dir"`
	DBPath     string `mapstructure:"db_path"`
	QuotaBytes int64  `mapstructure:"quota_bytes"`
}

// DefaultsConfig holds default values for various commands
type DefaultsConfig struct {
	// List command defaults
	ListLimit int `mapstructure:"list_limit"`

	// Prune / quota reclamation
	RetentionDays int `mapstructure:"retention_days"`

	// How long a finished session's download URL stays valid
	DownloadGrace string `mapstructure:"download_grace"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:      "ndjson",
		Quiet:       false,
		Verbose:     false,
		Listen:      "127.0.0.1:8791",
		DevtoolsURL: "",
		Storage: StorageConfig{
			Dir:        defaultStorageDir(),
			QuotaBytes: 512 * 1024 * 1024,
		},
		Defaults: DefaultsConfig{
			ListLimit:     20,
			RetentionDays: 7,
			DownloadGrace: "60s",
		},
	}
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".vetrec", "sessions")
	}
	return filepath.Join(home, ".vetrec", "sessions")
}

func newFileViper() *viper.Viper {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("vetrec")
	v.SetConfigType("yaml")

	// Add config paths (in order of precedence, lowest first)
	v.AddConfigPath("/etc/vetrec/")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "vetrec"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".vetrec")
	}
	v.AddConfigPath(".")
	return v
}

// UsedConfigFile reports which config file Load would read. Empty when no
// config file exists on the search path.
func UsedConfigFile() string {
	v := newFileViper()
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := newFileViper()

	// Environment variables
	v.SetEnvPrefix("VETREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.BindEnv("format", "VETREC_FORMAT")
	v.BindEnv("quiet", "VETREC_QUIET")
	v.BindEnv("verbose", "VETREC_VERBOSE")
	v.BindEnv("listen", "VETREC_LISTEN")
	v.BindEnv("devtools_url", "VETREC_DEVTOOLS_URL")
	v.BindEnv("storage.dir", "VETREC_STORAGE_DIR")
	v.BindEnv("storage.quota_bytes", "VETREC_STORAGE_QUOTA_BYTES")

	// Set defaults
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("devtools_url", cfg.DevtoolsURL)
	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("storage.db_path", cfg.Storage.DBPath)
	v.SetDefault("storage.quota_bytes", cfg.Storage.QuotaBytes)
	v.SetDefault("defaults.list_limit", cfg.Defaults.ListLimit)
	v.SetDefault("defaults.retention_days", cfg.Defaults.RetentionDays)
	v.SetDefault("defaults.download_grace", cfg.Defaults.DownloadGrace)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, err
		}
		// Config file not found; use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
