package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"github.com/vetsimlabs/vetrec/internal/evaluator"
	"github.com/vetsimlabs/vetrec/internal/recorder"
	"github.com/vetsimlabs/vetrec/internal/storage"
	"go.uber.org/zap"
)

type fakeProbe struct {
	url string
}

func (f *fakeProbe) SelectorExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (f *fakeProbe) CurrentURL(_ context.Context) (string, error) {
	return f.url, nil
}

func newTestServer(t *testing.T, clk clock.Clock) (*Server, *storage.Manager) {
	t.Helper()
	log := zap.NewNop().Sugar()

	mgr, err := storage.Open(storage.Config{
		Dir:           filepath.Join(t.TempDir(), "sessions"),
		RetentionDays: 7,
	}, clock.New(), log)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	eval := evaluator.New(&fakeProbe{url: "http://localhost/cornerstone/create-client"}, log)
	rec := recorder.New(mgr, nil, eval, clock.New(), log)

	srv := New(rec, mgr, mgr.Backend(), "127.0.0.1:0", 60*time.Second, clk, log)
	return srv, mgr
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, clock.New())
	h := srv.Handler()

	// events before any session are rejected
	w := postJSON(t, h, "/events", map[string]any{
		"events": []recorder.RawEvent{{Type: domain.EventClick}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// start
	w = postJSON(t, h, "/sessions/start", domain.Scenario{
		ID:   "create-client",
		Name: "Create a client",
		SuccessCriteria: []domain.Criterion{
			{Type: domain.CriterionURLContains, Value: "/create-client"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	sessionID := started["sessionId"]
	require.NotEmpty(t, sessionID)

	// events land
	w = postJSON(t, h, "/events", map[string]any{
		"events": []recorder.RawEvent{
			{Type: domain.EventClick, X: 10, Y: 20, Path: []domain.PathNode{{Tag: "BUTTON", ID: "save"}}},
			{Type: domain.EventKeydown, Key: "Enter"},
		},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	// end
	w = postJSON(t, h, "/sessions/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ended endResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ended))
	assert.Equal(t, sessionID, ended.SessionID)
	assert.Equal(t, domain.EvalSuccess, ended.Evaluation.Result)
	require.NotEmpty(t, ended.DownloadURL)

	// download payload carries the event log
	w = get(t, h, ended.DownloadURL)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessionId"`)
	assert.Contains(t, w.Body.String(), `"click"`)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "create-client-")

	// listing shows the completed session
	w = get(t, h, "/sessions?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.StatusCompleted, sessions[0].Status)

	// the composite read returns both events
	w = get(t, h, "/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, w.Code)
	var data storage.SessionData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.Len(t, data.Events, 2)
	assert.Equal(t, "button#save", data.Events[0].Selector)

	// ending again is rejected
	w = postJSON(t, h, "/sessions/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartIsIdempotentOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, clock.New())
	h := srv.Handler()

	scenario := domain.Scenario{ID: "sc1"}
	w1 := postJSON(t, h, "/sessions/start", scenario)
	require.Equal(t, http.StatusOK, w1.Code)
	w2 := postJSON(t, h, "/sessions/start", scenario)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.JSONEq(t, w1.Body.String(), w2.Body.String())
}

func TestDownloadURLExpires(t *testing.T) {
	clk := clock.NewMock()
	srv, _ := newTestServer(t, clk)
	h := srv.Handler()

	postJSON(t, h, "/sessions/start", domain.Scenario{ID: "sc1"})
	w := postJSON(t, h, "/sessions/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ended endResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ended))

	// valid inside the grace period
	assert.Equal(t, http.StatusOK, get(t, h, ended.DownloadURL).Code)

	// revoked after it
	clk.Add(2 * time.Minute)
	assert.Equal(t, http.StatusNotFound, get(t, h, ended.DownloadURL).Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t, clock.New())
	h := srv.Handler()

	w := get(t, h, "/sessions/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidScenarioRejected(t *testing.T) {
	srv, _ := newTestServer(t, clock.New())
	h := srv.Handler()

	w := postJSON(t, h, "/sessions/start", map[string]string{"name": "no id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, clock.New())
	w := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
