// Package output renders machine-readable NDJSON for AI agents and plain
// text for humans. Every NDJSON line carries a type and schema version so
// consumers can dispatch without sniffing.
package output

import (
	"encoding/json"
	"io"

	"github.com/vetsimlabs/vetrec/internal/domain"
)

// SchemaVersion is bumped when any NDJSON record shape changes
const SchemaVersion = 1

// NDJSONWriter emits one JSON object per line
type NDJSONWriter struct {
	enc *json.Encoder
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Ready is emitted when the agent starts accepting events
type Ready struct {
	Type          string `json:"type"` // "ready"
	SchemaVersion int    `json:"schemaVersion"`
	Listen        string `json:"listen"`
	Backend       string `json:"backend"`
	Timestamp     string `json:"timestamp"`
}

func (w *NDJSONWriter) WriteReady(listen, backend, timestamp string) error {
	return w.enc.Encode(Ready{
		Type:          "ready",
		SchemaVersion: SchemaVersion,
		Listen:        listen,
		Backend:       backend,
		Timestamp:     timestamp,
	})
}

// SessionLine is one listed session
type SessionLine struct {
	Type          string             `json:"type"` // "session"
	SchemaVersion int                `json:"schemaVersion"`
	SessionID     string             `json:"sessionId"`
	ScenarioID    string             `json:"scenarioId"`
	ScenarioName  string             `json:"scenarioName,omitempty"`
	StartTime     int64              `json:"startTime"`
	Duration      int64              `json:"duration,omitempty"`
	Status        string             `json:"status"`
	Evaluation    *domain.Evaluation `json:"evaluation,omitempty"`
}

func (w *NDJSONWriter) WriteSession(meta domain.Session) error {
	return w.enc.Encode(SessionLine{
		Type:          "session",
		SchemaVersion: SchemaVersion,
		SessionID:     meta.SessionID,
		ScenarioID:    meta.ScenarioID,
		ScenarioName:  meta.ScenarioName,
		StartTime:     meta.StartTime,
		Duration:      meta.Duration,
		Status:        string(meta.Status),
		Evaluation:    meta.Evaluation,
	})
}

// SessionDetail is a full session read: metadata plus its event stream
type SessionDetail struct {
	Type          string         `json:"type"` // "session_detail"
	SchemaVersion int            `json:"schemaVersion"`
	Session       domain.Session `json:"session"`
	Events        []domain.Event `json:"events"`
	Screenshots   int            `json:"screenshots"`
}

func (w *NDJSONWriter) WriteSessionDetail(meta domain.Session, events []domain.Event, screenshots int) error {
	return w.enc.Encode(SessionDetail{
		Type:          "session_detail",
		SchemaVersion: SchemaVersion,
		Session:       meta,
		Events:        events,
		Screenshots:   screenshots,
	})
}

// Export reports a written export artifact
type Export struct {
	Type          string `json:"type"` // "export"
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"sessionId"`
	Filename      string `json:"filename"`
	Bytes         int    `json:"bytes"`
}

func (w *NDJSONWriter) WriteExport(sessionID, filename string, size int) error {
	return w.enc.Encode(Export{
		Type:          "export",
		SchemaVersion: SchemaVersion,
		SessionID:     sessionID,
		Filename:      filename,
		Bytes:         size,
	})
}

// Pruned reports a retention pass
type Pruned struct {
	Type          string `json:"type"` // "pruned"
	SchemaVersion int    `json:"schemaVersion"`
	DaysKept      int    `json:"daysKept"`
	Removed       int    `json:"removed"`
}

func (w *NDJSONWriter) WritePruned(daysKept, removed int) error {
	return w.enc.Encode(Pruned{
		Type:          "pruned",
		SchemaVersion: SchemaVersion,
		DaysKept:      daysKept,
		Removed:       removed,
	})
}

// ErrorLine is a machine-readable failure
type ErrorLine struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	line := ErrorLine{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
	}
	if len(hint) > 0 {
		line.Hint = hint[0]
	}
	return w.enc.Encode(line)
}
