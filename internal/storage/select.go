package storage

import (
	"errors"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config controls where and how much the selected backend may store
type Config struct {
	// Dir is the root for the hierarchical backend, one directory per
	// session.
	Dir string
	// DBPath is the SQLite file used by the fallback backend. Empty means
	// "sessions.db" next to Dir.
	DBPath string
	// QuotaBytes caps persisted data size; 0 disables the budget.
	QuotaBytes int64
	// RetentionDays is how far back reclamation keeps sessions when a
	// write hits the quota.
	RetentionDays int
}

// Open probes the hierarchical capability once and returns the backend the
// process will use for its whole lifetime. A failed probe selects the
// embedded SQLite backend permanently; the choice is never re-evaluated
// mid-session. The returned manager adds quota reclamation and retry on top
// of the raw backend.
func Open(cfg Config, clk clock.Clock, log *zap.SugaredLogger) (*Manager, error) {
	store, err := probe(cfg, clk, log)
	if err != nil {
		return nil, err
	}
	log.Infow("storage backend selected", "backend", store.Name())
	return NewManager(store, cfg.RetentionDays, clk, log), nil
}

func probe(cfg Config, clk clock.Clock, log *zap.SugaredLogger) (Store, error) {
	dir, err := OpenDirStore(cfg.Dir, cfg.QuotaBytes, clk, log)
	if err == nil {
		return dir, nil
	}
	if !errors.Is(err, ErrCapabilityUnavailable) {
		return nil, err
	}
	log.Warnw("directory storage unavailable, falling back to sqlite", "error", err)

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(cfg.Dir), "sessions.db")
	}
	return OpenSQLiteStore(dbPath, cfg.QuotaBytes, clk, log)
}
