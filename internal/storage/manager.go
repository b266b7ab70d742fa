package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
)

const (
	// quota writes are retried after reclamation with increasing delay
	quotaRetries    = 3
	quotaRetryDelay = 100 * time.Millisecond
)

// Manager fronts the selected backend with quota handling: a write that
// fails with ErrQuotaExceeded triggers retention-based reclamation and a
// bounded number of retries with increasing delay. If the quota still
// cannot be satisfied the error is surfaced so the caller can fall back to
// its in-memory buffer.
type Manager struct {
	store         Store
	retentionDays int
	clock         clock.Clock
	log           *zap.SugaredLogger
}

// NewManager wraps a backend. retentionDays bounds reclamation; values
// below 1 reclaim everything but the current day.
func NewManager(store Store, retentionDays int, clk clock.Clock, log *zap.SugaredLogger) *Manager {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &Manager{store: store, retentionDays: retentionDays, clock: clk, log: log}
}

// Backend exposes the wrapped store's name for logging
func (m *Manager) Backend() string { return m.store.Name() }

func (m *Manager) Close() error { return m.store.Close() }

func (m *Manager) withQuotaRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrQuotaExceeded) {
			return err
		}
		if attempt >= quotaRetries {
			m.log.Errorw("quota exhausted after reclamation", "op", op, "attempts", attempt)
			return err
		}

		reclaimed, rerr := m.store.DeleteOldSessions(ctx, m.retentionDays)
		if rerr != nil {
			m.log.Warnw("reclamation failed", "op", op, "error", rerr)
		} else {
			m.log.Infow("reclaimed sessions after quota error", "op", op, "removed", reclaimed)
		}

		delay := quotaRetryDelay << attempt
		timer := m.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (m *Manager) CreateSession(ctx context.Context, meta domain.Session) error {
	return m.withQuotaRetry(ctx, "create_session", func() error {
		return m.store.CreateSession(ctx, meta)
	})
}

func (m *Manager) AppendEvent(ctx context.Context, sessionID string, ev domain.Event) error {
	return m.withQuotaRetry(ctx, "append_event", func() error {
		return m.store.AppendEvent(ctx, sessionID, ev)
	})
}

func (m *Manager) SaveScreenshot(ctx context.Context, sessionID string, shot domain.Screenshot) error {
	return m.withQuotaRetry(ctx, "save_screenshot", func() error {
		return m.store.SaveScreenshot(ctx, sessionID, shot)
	})
}

func (m *Manager) FinalizeSession(ctx context.Context, meta domain.Session) error {
	return m.withQuotaRetry(ctx, "finalize_session", func() error {
		return m.store.FinalizeSession(ctx, meta)
	})
}

func (m *Manager) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	return m.store.ListSessions(ctx, limit)
}

func (m *Manager) GetSession(ctx context.Context, sessionID string) (*SessionData, error) {
	data, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attachScreenshotRefs(data)
	return data, nil
}

// attachScreenshotRefs resolves the event-to-screenshot association at read
// time: an exact timestamp match wins, otherwise the nearest screenshot with
// ties broken toward the earlier one. The directory backend truncates
// screenshot names to whole seconds, so stored refs cannot be matched by
// equality alone.
func attachScreenshotRefs(data *SessionData) {
	if len(data.Screenshots) == 0 {
		return
	}
	for i := range data.Events {
		ev := &data.Events[i]
		if !ev.Type.Discrete() || ev.ScreenshotRef != "" {
			continue
		}
		if idx := domain.NearestScreenshot(data.Screenshots, ev.Timestamp); idx >= 0 {
			ev.ScreenshotRef = strconv.FormatInt(data.Screenshots[idx].Timestamp, 10)
		}
	}
}

func (m *Manager) ExportSession(ctx context.Context, sessionID string) (*ExportBundle, error) {
	return m.store.ExportSession(ctx, sessionID)
}

func (m *Manager) DeleteOldSessions(ctx context.Context, daysToKeep int) (int, error) {
	return m.store.DeleteOldSessions(ctx, daysToKeep)
}
