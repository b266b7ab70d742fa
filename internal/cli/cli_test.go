package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vetsimlabs/vetrec/internal/config"
	"github.com/vetsimlabs/vetrec/internal/domain"
)

// testGlobals creates a Globals struct with captured stdout/stderr and
// storage rooted in a temp directory
func testGlobals(t *testing.T, format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cfg := config.Default()
	cfg.Storage.Dir = filepath.Join(t.TempDir(), "sessions")
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "sessions.db")
	g := &Globals{
		Format: format,
		Stdout: stdout,
		Stderr: stderr,
		Config: cfg,
	}
	g.logger = newAgentLogger(g)
	return g, stdout, stderr
}

// seedSession writes one completed session directly through the storage layer
func seedSession(t *testing.T, globals *Globals, meta domain.Session, events []domain.Event) {
	t.Helper()
	log := zap.NewNop().Sugar()
	store, err := openStore(globals, clock.New(), log)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, meta))
	for _, ev := range events {
		require.NoError(t, store.AppendEvent(ctx, meta.SessionID, ev))
	}
	meta.Status = domain.StatusCompleted
	require.NoError(t, store.FinalizeSession(ctx, meta))
}

func completedSession(id, scenario string, start time.Time) domain.Session {
	return domain.Session{
		SessionID:    id,
		ScenarioID:   scenario,
		ScenarioName: "Scenario " + scenario,
		StartTime:    start.UnixMilli(),
		Duration:     1500,
		Status:       domain.StatusCompleted,
		Evaluation:   &domain.Evaluation{Result: domain.EvalSuccess, CriteriaMet: 1},
	}
}

// --- Config Command Tests ---

func TestConfigShowCmd_Run(t *testing.T) {
	t.Run("outputs config in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		out := stdout.String()
		assert.Contains(t, out, "Current Configuration:")
		assert.Contains(t, out, "format:")
		assert.Contains(t, out, "listen:")
		assert.Contains(t, out, "Defaults:")
	})

	t.Run("outputs config in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "config", result["type"])
		assert.Contains(t, result, "format")
		assert.Contains(t, result, "listen")
		assert.Contains(t, result, "storage")
		assert.Contains(t, result, "defaults")
	})
}

func TestConfigPathCmd_Run(t *testing.T) {
	t.Run("outputs path info in text format when no config", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		cmd := &ConfigPathCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		out := stdout.String()
		// Either shows the path or says no config found
		assert.True(t, strings.Contains(out, "Config file:") || strings.Contains(out, "No configuration file found"))
	})

	t.Run("outputs path in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &ConfigPathCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "config_path", result["type"])
		assert.Contains(t, result, "path")
	})
}

func TestConfigGenerateCmd_Run(t *testing.T) {
	t.Run("outputs sample config YAML", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		cmd := &ConfigGenerateCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		out := stdout.String()
		assert.Contains(t, out, "# vetrec configuration file")
		assert.Contains(t, out, "format: ndjson")
		assert.Contains(t, out, "listen: 127.0.0.1:8791")
		assert.Contains(t, out, "defaults:")
		assert.Contains(t, out, "retention_days: 7")
	})
}

// --- Schema Command Tests ---

func TestSchemaCmd_Run(t *testing.T) {
	t.Run("outputs all schemas by default", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &SchemaCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		defs, ok := result["definitions"].(map[string]interface{})
		require.True(t, ok)
		for _, name := range []string{"ready", "session", "session_detail", "export", "pruned", "error"} {
			assert.Contains(t, defs, name)
		}
	})

	t.Run("filters schemas by type", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &SchemaCmd{Type: []string{"error"}}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		defs := result["definitions"].(map[string]interface{})
		assert.Contains(t, defs, "error")
		assert.NotContains(t, defs, "session")
	})
}

// --- Update Command Tests ---

func TestUpdateCmd_Run(t *testing.T) {
	t.Run("NDJSON output carries install instructions", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &UpdateCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "update", result["type"])
		assert.Contains(t, result["go_install"], "cmd/vetrec@latest")
	})

	t.Run("text output mentions current version", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		cmd := &UpdateCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "Current version:")
	})
}

// --- List Command Tests ---

func TestListCmd_Run(t *testing.T) {
	t.Run("empty storage prints a friendly message", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		cmd := &ListCmd{Limit: 20}

		err := cmd.Run(globals)
		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "No sessions recorded")
	})

	t.Run("lists seeded sessions as NDJSON", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		seedSession(t, globals, completedSession("s1", "intake", time.Now().Add(-time.Hour)), nil)
		seedSession(t, globals, completedSession("s2", "triage", time.Now()), nil)

		cmd := &ListCmd{Limit: 20}
		err := cmd.Run(globals)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
		require.Len(t, lines, 2)

		var first map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, "session", first["type"])
		// Newest first
		assert.Equal(t, "s2", first["sessionId"])
	})

	t.Run("where clause filters sessions", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		seedSession(t, globals, completedSession("s1", "intake", time.Now().Add(-time.Hour)), nil)
		seedSession(t, globals, completedSession("s2", "triage", time.Now()), nil)

		cmd := &ListCmd{Limit: 20, Where: []string{"scenario=intake"}}
		err := cmd.Run(globals)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"sessionId":"s1"`)
	})

	t.Run("invalid where clause is a machine-readable error", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &ListCmd{Limit: 20, Where: []string{"nonsense"}}

		err := cmd.Run(globals)
		require.Error(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "error", result["type"])
		assert.Equal(t, "INVALID_WHERE", result["code"])
	})

	t.Run("renders a table in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		seedSession(t, globals, completedSession("s1", "intake", time.Now()), nil)

		cmd := &ListCmd{Limit: 20}
		err := cmd.Run(globals)
		require.NoError(t, err)

		out := stdout.String()
		assert.Contains(t, out, "SESSION")
		assert.Contains(t, out, "s1")
		assert.Contains(t, out, "intake")
	})
}

// --- Show Command Tests ---

func TestShowCmd_Run(t *testing.T) {
	t.Run("unknown session yields SESSION_NOT_FOUND", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &ShowCmd{SessionID: "nope"}

		err := cmd.Run(globals)
		require.Error(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "SESSION_NOT_FOUND", result["code"])
	})

	t.Run("emits a session_detail record", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		events := []domain.Event{
			{Timestamp: 100, Type: domain.EventClick, Selector: "main>button"},
			{Timestamp: 250, Type: domain.EventKeydown, Selector: "main>input", Key: "a"},
		}
		seedSession(t, globals, completedSession("s1", "intake", time.Now()), events)

		cmd := &ShowCmd{SessionID: "s1"}
		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "session_detail", result["type"])
		assert.Len(t, result["events"], 2)
	})

	t.Run("text output lists events with timestamps", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "text")
		events := []domain.Event{
			{Timestamp: 100, Type: domain.EventClick, Selector: "main>button"},
		}
		seedSession(t, globals, completedSession("s1", "intake", time.Now()), events)

		cmd := &ShowCmd{SessionID: "s1"}
		err := cmd.Run(globals)
		require.NoError(t, err)

		out := stdout.String()
		assert.Contains(t, out, "Session:   s1")
		assert.Contains(t, out, "click")
		assert.Contains(t, out, "main>button")
	})
}

// --- Export Command Tests ---

func TestExportCmd_Run(t *testing.T) {
	t.Run("writes the export payload to disk", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		seedSession(t, globals, completedSession("s1", "intake", time.Now()), []domain.Event{
			{Timestamp: 100, Type: domain.EventClick, Selector: "main>button"},
		})

		out := filepath.Join(t.TempDir(), "export", "s1.json")
		cmd := &ExportCmd{SessionID: "s1", Out: out}
		err := cmd.Run(globals)
		require.NoError(t, err)

		payload, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"sessionId"`)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "export", result["type"])
		assert.Equal(t, "s1", result["sessionId"])
		assert.Equal(t, out, result["filename"])
	})

	t.Run("unknown session yields SESSION_NOT_FOUND", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &ExportCmd{SessionID: "nope"}

		err := cmd.Run(globals)
		require.Error(t, err)
		assert.Contains(t, stdout.String(), "SESSION_NOT_FOUND")
	})
}

// --- Prune Command Tests ---

func TestPruneCmd_Run(t *testing.T) {
	t.Run("removes sessions past the retention window", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		seedSession(t, globals, completedSession("old", "intake", time.Now().AddDate(0, 0, -30)), nil)
		seedSession(t, globals, completedSession("fresh", "intake", time.Now()), nil)

		cmd := &PruneCmd{Days: 7}
		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "pruned", result["type"])
		assert.Equal(t, float64(1), result["removed"])
		assert.Equal(t, float64(7), result["daysKept"])
	})

	t.Run("negative days is rejected", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")
		cmd := &PruneCmd{Days: -1}

		err := cmd.Run(globals)
		require.Error(t, err)
		assert.Contains(t, stdout.String(), "INVALID_DAYS")
	})
}

// --- Flag Validation Tests ---

func TestValidateFlags(t *testing.T) {
	globals, stdout, _ := testGlobals(t, "ndjson")
	globals.Quiet = true
	assert.NoError(t, validateFlags(globals))
	assert.Empty(t, stdout.String())

	globals, _, stderr := testGlobals(t, "text")
	globals.Quiet = true
	err := validateFlags(globals)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "INVALID_FLAGS")
}

// --- Error Output Tests ---

func TestOutputErrorCommon(t *testing.T) {
	t.Run("ndjson emits a typed error line", func(t *testing.T) {
		globals, stdout, _ := testGlobals(t, "ndjson")

		err := outputErrorCommon(globals, "SOME_CODE", "it broke", "try again")
		require.Error(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "error", result["type"])
		assert.Equal(t, "SOME_CODE", result["code"])
		assert.Equal(t, "it broke", result["message"])
		assert.Equal(t, "try again", result["hint"])
	})

	t.Run("text goes to stderr with the hint", func(t *testing.T) {
		globals, _, stderr := testGlobals(t, "text")

		err := outputErrorCommon(globals, "SOME_CODE", "it broke", "try again")
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "Error [SOME_CODE]: it broke")
		assert.Contains(t, stderr.String(), "hint: try again")
	})
}
