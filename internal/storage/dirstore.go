package storage

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
)

const (
	manifestFile   = "manifest.json"
	eventsFile     = "events.ndjson"
	screenshotsDir = "screenshots"

	// collisions within the same truncated second get a numeric suffix
	maxShotSuffix = 64
)

// DirStore is the hierarchical backend: one directory per session holding a
// manifest, an append-only NDJSON event log, and a screenshots folder.
type DirStore struct {
	root  string
	quota int64
	clock clock.Clock
	log   *zap.SugaredLogger

	mu   sync.Mutex
	used int64
}

// OpenDirStore probes the directory capability and opens the store rooted at
// dir. A failed probe is reported as ErrCapabilityUnavailable so the
// selector can fall back.
func OpenDirStore(dir string, quota int64, clk clock.Clock, log *zap.SugaredLogger) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}

	// Probe append semantics the same way every event write will use them.
	probe := filepath.Join(dir, ".probe")
	f, err := os.OpenFile(probe, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}
	if _, err := f.Write([]byte("ok")); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}
	f.Close()
	os.Remove(probe)

	s := &DirStore{root: dir, quota: quota, clock: clk, log: log}
	s.used = s.scanUsage()
	return s, nil
}

func (s *DirStore) Name() string { return "dir" }

func (s *DirStore) Close() error { return nil }

// scanUsage walks the root once to seed the byte budget accounting
func (s *DirStore) scanUsage() int64 {
	var total int64
	filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// reserve checks the byte budget before a write of n bytes
func (s *DirStore) reserve(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota > 0 && s.used+n > s.quota {
		return fmt.Errorf("%w: %d+%d exceeds %d bytes", ErrQuotaExceeded, s.used, n, s.quota)
	}
	s.used += n
	return nil
}

func (s *DirStore) release(n int64) {
	s.mu.Lock()
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
	s.mu.Unlock()
}

func (s *DirStore) sessionDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *DirStore) writeManifest(meta domain.Session) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	// Only the growth over the manifest being replaced counts against the
	// budget, otherwise every finalize would leak one manifest of quota.
	path := filepath.Join(s.sessionDir(meta.SessionID), manifestFile)
	var old int64
	if info, err := os.Stat(path); err == nil {
		old = info.Size()
	}
	grow := int64(len(b)) - old
	if grow > 0 {
		if err := s.reserve(grow); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		if grow > 0 {
			s.release(grow)
		}
		return fmt.Errorf("write manifest: %w", err)
	}
	if grow < 0 {
		s.release(-grow)
	}
	return nil
}

func (s *DirStore) readManifest(id string) (*domain.Session, error) {
	b, err := os.ReadFile(filepath.Join(s.sessionDir(id), manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	var meta domain.Session
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest for %s", ErrSessionNotFound, id)
	}
	return &meta, nil
}

func (s *DirStore) CreateSession(_ context.Context, meta domain.Session) error {
	dir := s.sessionDir(meta.SessionID)
	if err := os.MkdirAll(filepath.Join(dir, screenshotsDir), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return s.writeManifest(meta)
}

func (s *DirStore) AppendEvent(_ context.Context, sessionID string, ev domain.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if err := s.reserve(int64(len(line))); err != nil {
		return err
	}

	// Opened for append on every write so a crash loses at most one line.
	path := filepath.Join(s.sessionDir(sessionID), eventsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.release(int64(len(line)))
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		s.release(int64(len(line)))
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *DirStore) SaveScreenshot(_ context.Context, sessionID string, shot domain.Screenshot) error {
	if err := s.reserve(int64(len(shot.Image))); err != nil {
		return err
	}

	dir := filepath.Join(s.sessionDir(sessionID), screenshotsDir)
	sec := shot.Timestamp / 1000
	name := fmt.Sprintf("%d.jpg", sec)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			break
		}
		if i > maxShotSuffix {
			s.release(int64(len(shot.Image)))
			return fmt.Errorf("%w: too many screenshots in second %d", ErrInvalidOperation, sec)
		}
		name = fmt.Sprintf("%d-%d.jpg", sec, i)
	}

	if err := os.WriteFile(filepath.Join(dir, name), shot.Image, 0o644); err != nil {
		s.release(int64(len(shot.Image)))
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func (s *DirStore) FinalizeSession(_ context.Context, meta domain.Session) error {
	if _, err := s.readManifest(meta.SessionID); err != nil {
		return err
	}
	return s.writeManifest(meta)
}

func (s *DirStore) ListSessions(_ context.Context, limit int) ([]domain.Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []domain.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readManifest(e.Name())
		if err != nil {
			// One bad manifest must not abort the whole listing.
			s.log.Warnw("skipping unreadable session", "session", e.Name(), "error", err)
			continue
		}
		sessions = append(sessions, *meta)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime > sessions[j].StartTime
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *DirStore) GetSession(_ context.Context, sessionID string) (*SessionData, error) {
	meta, err := s.readManifest(sessionID)
	if err != nil {
		return nil, err
	}

	data := &SessionData{Meta: *meta, Events: []domain.Event{}, Screenshots: []domain.Screenshot{}}

	if f, err := os.Open(filepath.Join(s.sessionDir(sessionID), eventsFile)); err == nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				s.log.Warnw("skipping corrupt event line", "session", sessionID, "error", err)
				continue
			}
			data.Events = append(data.Events, ev)
		}
		f.Close()
	}

	shotDir := filepath.Join(s.sessionDir(sessionID), screenshotsDir)
	if entries, err := os.ReadDir(shotDir); err == nil {
		for _, e := range entries {
			ts, ok := shotTimestamp(e.Name())
			if !ok {
				continue
			}
			img, err := os.ReadFile(filepath.Join(shotDir, e.Name()))
			if err != nil {
				s.log.Warnw("skipping unreadable screenshot", "session", sessionID, "file", e.Name(), "error", err)
				continue
			}
			data.Screenshots = append(data.Screenshots, domain.Screenshot{
				Timestamp: ts,
				Image:     img,
				DataURI:   jpegDataURI(img),
			})
		}
	}
	sort.Slice(data.Screenshots, func(i, j int) bool {
		return data.Screenshots[i].Timestamp < data.Screenshots[j].Timestamp
	})

	return data, nil
}

func (s *DirStore) ExportSession(ctx context.Context, sessionID string) (*ExportBundle, error) {
	data, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildExport(data)
}

func (s *DirStore) DeleteOldSessions(ctx context.Context, daysToKeep int) (int, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -daysToKeep).UnixMilli()
	sessions, err := s.ListSessions(ctx, 0)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, meta := range sessions {
		if meta.StartTime >= cutoff {
			continue
		}
		dir := s.sessionDir(meta.SessionID)
		var freed int64
		filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, err := d.Info(); err == nil {
				freed += info.Size()
			}
			return nil
		})
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warnw("failed to prune session", "session", meta.SessionID, "error", err)
			continue
		}
		s.release(freed)
		removed++
	}
	return removed, nil
}

// shotTimestamp parses "<sec>.jpg" or "<sec>-<n>.jpg" back to milliseconds
func shotTimestamp(name string) (int64, bool) {
	base := strings.TrimSuffix(name, ".jpg")
	if base == name {
		return 0, false
	}
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
	}
	sec, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return sec * 1000, true
}

func jpegDataURI(img []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
}

func buildExport(data *SessionData) (*ExportBundle, error) {
	summary := exportSummary{
		Meta:             data.Meta,
		EventsCount:      len(data.Events),
		ScreenshotsCount: len(data.Screenshots),
	}
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, err
	}
	return &ExportBundle{
		Filename: data.Meta.SessionID + ".json",
		Payload:  payload,
	}, nil
}
