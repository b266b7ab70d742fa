package storage

import (
	"context"
	"errors"

	"github.com/vetsimlabs/vetrec/internal/domain"
)

// Sentinel errors shared by all backends. Callers match with errors.Is.
var (
	// ErrCapabilityUnavailable means the hierarchical backend cannot be
	// used in this environment; the selector falls back permanently.
	ErrCapabilityUnavailable = errors.New("hierarchical storage capability unavailable")

	// ErrQuotaExceeded means a write would push the backend past its byte
	// budget. The manager attempts reclamation and retries.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrSessionNotFound means the requested session does not exist or its
	// manifest is unreadable.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidOperation flags contract violations such as appending to a
	// finalized session.
	ErrInvalidOperation = errors.New("invalid storage operation")
)

// SessionData is the backend-agnostic composite returned by GetSession.
// Screenshots are sorted ascending by timestamp regardless of backend.
type SessionData struct {
	Meta        domain.Session      `json:"meta"`
	Events      []domain.Event      `json:"events"`
	Screenshots []domain.Screenshot `json:"screenshots"`
}

// ExportBundle is a JSON summary of a stored session offered for download.
// Screenshot binaries are not bundled by the minimal exporter.
type ExportBundle struct {
	Filename string `json:"filename"`
	Payload  []byte `json:"payload"`
}

// Store is the single contract both backends satisfy. All operations are
// keyed by session ID so concurrent calls on different sessions do not
// interfere.
type Store interface {
	// CreateSession persists the initial manifest for a new session.
	CreateSession(ctx context.Context, meta domain.Session) error
	// AppendEvent appends one immutable event record.
	AppendEvent(ctx context.Context, sessionID string, ev domain.Event) error
	// SaveScreenshot persists one screenshot keyed by timestamp.
	SaveScreenshot(ctx context.Context, sessionID string, shot domain.Screenshot) error
	// FinalizeSession rewrites the manifest with end time, duration and
	// evaluation, transitioning the session to completed.
	FinalizeSession(ctx context.Context, meta domain.Session) error
	// ListSessions returns up to limit manifests, newest start time first.
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	// GetSession assembles the full composite for one session.
	GetSession(ctx context.Context, sessionID string) (*SessionData, error)
	// ExportSession builds a downloadable JSON summary.
	ExportSession(ctx context.Context, sessionID string) (*ExportBundle, error)
	// DeleteOldSessions removes sessions started more than daysToKeep days
	// ago and reports how many were removed.
	DeleteOldSessions(ctx context.Context, daysToKeep int) (int, error)

	// Name identifies the backend ("dir" or "sqlite") for logging.
	Name() string
	Close() error
}

// exportSummary is the wire shape of the minimal exporter payload
type exportSummary struct {
	Meta             domain.Session `json:"meta"`
	EventsCount      int            `json:"eventsCount"`
	ScreenshotsCount int            `json:"screenshotsCount"`
}
