package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
)

// flakyStore fails writes with ErrQuotaExceeded until reclamation happens
type flakyStore struct {
	Store
	failuresLeft int
	reclaimed    int
	appended     int
}

func (f *flakyStore) AppendEvent(ctx context.Context, sessionID string, ev domain.Event) error {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return ErrQuotaExceeded
	}
	f.appended++
	return nil
}

func (f *flakyStore) DeleteOldSessions(ctx context.Context, daysToKeep int) (int, error) {
	f.reclaimed++
	return 1, nil
}

func (f *flakyStore) FinalizeSession(ctx context.Context, meta domain.Session) error {
	return ErrSessionNotFound
}

func (f *flakyStore) Name() string { return "flaky" }

func TestManagerRetriesAfterReclamation(t *testing.T) {
	fake := &flakyStore{failuresLeft: 2}
	m := NewManager(fake, 7, clock.New(), zap.NewNop().Sugar())

	err := m.AppendEvent(context.Background(), "s1", domain.Event{Type: domain.EventClick})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.reclaimed)
	assert.Equal(t, 1, fake.appended)
}

func TestManagerSurfacesPersistentQuotaError(t *testing.T) {
	fake := &flakyStore{failuresLeft: 100}
	m := NewManager(fake, 7, clock.New(), zap.NewNop().Sugar())

	err := m.AppendEvent(context.Background(), "s1", domain.Event{Type: domain.EventClick})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	// reclamation was attempted on every retry
	assert.Equal(t, quotaRetries, fake.reclaimed)
}

// cannedStore serves a fixed SessionData so ref resolution can be asserted
// against millisecond-precision screenshot timestamps
type cannedStore struct {
	Store
	data *SessionData
}

func (c *cannedStore) GetSession(_ context.Context, _ string) (*SessionData, error) {
	return c.data, nil
}

func (c *cannedStore) Name() string { return "canned" }

func TestManagerGetSessionAttachesScreenshotRefs(t *testing.T) {
	ctx := context.Background()
	s, err := OpenDirStore(filepath.Join(t.TempDir(), "sessions"), 0, clock.New(), zap.NewNop().Sugar())
	require.NoError(t, err)
	m := NewManager(s, 7, clock.New(), zap.NewNop().Sugar())

	require.NoError(t, m.CreateSession(ctx, testSession("s1", 1000)))
	require.NoError(t, m.AppendEvent(ctx, "s1", domain.Event{Timestamp: 1150, Type: domain.EventClick}))
	require.NoError(t, m.AppendEvent(ctx, "s1", domain.Event{Timestamp: 1200, Type: domain.EventMousemove}))
	require.NoError(t, m.SaveScreenshot(ctx, "s1", domain.Screenshot{Timestamp: 1150, Image: []byte("jpg")}))

	data, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, data.Events, 2)

	// the dir backend names screenshots by whole second, so the persisted
	// click still resolves to the nearest stored timestamp on read
	assert.Equal(t, "1000", data.Events[0].ScreenshotRef)
	// high-frequency events never carry a ref
	assert.Empty(t, data.Events[1].ScreenshotRef)
}

func TestManagerScreenshotRefPrefersExactThenEarlier(t *testing.T) {
	fake := &cannedStore{data: &SessionData{
		Events: []domain.Event{
			{Timestamp: 150, Type: domain.EventClick},
			{Timestamp: 300, Type: domain.EventKeydown},
		},
		Screenshots: []domain.Screenshot{
			{Timestamp: 100}, {Timestamp: 200}, {Timestamp: 300},
		},
	}}
	m := NewManager(fake, 7, clock.New(), zap.NewNop().Sugar())

	data, err := m.GetSession(context.Background(), "s1")
	require.NoError(t, err)

	// equidistant between 100 and 200: the earlier one wins
	assert.Equal(t, "100", data.Events[0].ScreenshotRef)
	// exact match beats any neighbor
	assert.Equal(t, "300", data.Events[1].ScreenshotRef)
}

func TestManagerPassesThroughOtherErrors(t *testing.T) {
	fake := &flakyStore{}
	m := NewManager(fake, 7, clock.New(), zap.NewNop().Sugar())

	err := m.FinalizeSession(context.Background(), domain.Session{SessionID: "ghost"})
	require.Error(t, err)
	assert.Zero(t, fake.reclaimed)
}
