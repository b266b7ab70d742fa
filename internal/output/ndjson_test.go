package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vetsimlabs/vetrec/internal/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(buf)
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestWriteReady(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	err := w.WriteReady("127.0.0.1:8791", "dir", "2026-08-29T10:00:00Z")
	require.NoError(t, err)

	m := decodeLine(t, buf)
	require.Equal(t, "ready", m["type"])
	require.EqualValues(t, 1, m["schemaVersion"])
	require.Equal(t, "127.0.0.1:8791", m["listen"])
	require.Equal(t, "dir", m["backend"])
}

func TestWriteSession(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	meta := domain.Session{
		SessionID:  "2026-08-29T10:00:00.000Z_create-client",
		ScenarioID: "create-client",
		StartTime:  1000,
		Duration:   5000,
		Status:     domain.StatusCompleted,
		Evaluation: &domain.Evaluation{Result: domain.EvalSuccess, CriteriaMet: 1},
	}
	require.NoError(t, w.WriteSession(meta))

	m := decodeLine(t, buf)
	require.Equal(t, "session", m["type"])
	require.Equal(t, "create-client", m["scenarioId"])
	require.Equal(t, "completed", m["status"])
	eval, ok := m["evaluation"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "success", eval["result"])
}

func TestWriteSessionDetail(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	meta := domain.Session{SessionID: "s1", ScenarioID: "intake", Status: domain.StatusCompleted}
	events := []domain.Event{
		{Timestamp: 100, Type: domain.EventClick, Selector: "main>button"},
	}
	require.NoError(t, w.WriteSessionDetail(meta, events, 2))

	m := decodeLine(t, buf)
	require.Equal(t, "session_detail", m["type"])
	require.EqualValues(t, 2, m["screenshots"])
	evs, ok := m["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, evs, 1)
}

func TestWriteError(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteError("SESSION_NOT_FOUND", "no such session", "run 'vetrec list'"))

	m := decodeLine(t, buf)
	require.Equal(t, "error", m["type"])
	require.Equal(t, "SESSION_NOT_FOUND", m["code"])
	require.Equal(t, "no such session", m["message"])
	require.Equal(t, "run 'vetrec list'", m["hint"])
}

func TestWritePruned(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WritePruned(7, 3))

	m := decodeLine(t, buf)
	require.Equal(t, "pruned", m["type"])
	require.EqualValues(t, 7, m["daysKept"])
	require.EqualValues(t, 3, m["removed"])
}
