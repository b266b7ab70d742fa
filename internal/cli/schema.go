package cli

import (
	"encoding/json"
	"strings"
)

// SchemaCmd outputs JSON Schema for vetrec output types
type SchemaCmd struct {
	Type []string `short:"t" help:"Output types to include (ready,session,session_detail,export,pruned,error). Default: all"`
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	schemas := map[string]interface{}{
		"ready":          readySchema(),
		"session":        sessionSchema(),
		"session_detail": sessionDetailSchema(),
		"export":         exportSchema(),
		"pruned":         prunedSchema(),
		"error":          errorSchema(),
	}

	// Determine which schemas to output
	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = []string{"ready", "session", "session_detail", "export", "pruned", "error"}
	}

	// Build output
	out := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "vetrec Output Schemas",
		"description": "JSON Schema definitions for all vetrec NDJSON output types",
		"definitions": map[string]interface{}{},
	}

	defs := out["definitions"].(map[string]interface{})
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func readySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Ready",
		"description": "Emitted when the capture agent starts accepting events",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "ready",
			},
			"listen": map[string]interface{}{
				"type":        "string",
				"description": "Address the capture endpoint is bound to",
			},
			"backend": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"dir", "sqlite"},
				"description": "Selected storage backend",
			},
			"timestamp": map[string]interface{}{
				"type":        "string",
				"format":      "date-time",
				"description": "ISO8601 timestamp of startup",
			},
		},
		"required": []string{"type", "listen", "backend", "timestamp"},
	}
}

func sessionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Session",
		"description": "A recorded session as listed by 'vetrec list'",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "session",
			},
			"sessionId": map[string]interface{}{
				"type":        "string",
				"description": "Unique id: <start-timestamp>_<scenario-id>",
			},
			"scenarioId": map[string]interface{}{
				"type":        "string",
				"description": "Scenario this session ran against",
			},
			"scenarioName": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable scenario name",
			},
			"startTime": map[string]interface{}{
				"type":        "integer",
				"description": "Epoch milliseconds when recording started",
			},
			"duration": map[string]interface{}{
				"type":        "integer",
				"description": "Session length in milliseconds",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"in_progress", "completed"},
				"description": "Session lifecycle state",
			},
			"evaluation": map[string]interface{}{
				"type":        "object",
				"description": "Criteria scoring, present once the session completed",
				"properties": map[string]interface{}{
					"result": map[string]interface{}{
						"type": "string",
						"enum": []string{"success", "failure", "partial", "unknown"},
					},
					"criteriaMet":    map[string]interface{}{"type": "integer"},
					"criteriaFailed": map[string]interface{}{"type": "integer"},
				},
			},
		},
		"required": []string{"type", "sessionId", "scenarioId", "startTime", "status"},
	}
}

func sessionDetailSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Session Detail",
		"description": "A full session read: metadata plus its event stream",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "session_detail",
			},
			"session": map[string]interface{}{
				"type":        "object",
				"description": "Session metadata (same shape as the session record)",
			},
			"events": map[string]interface{}{
				"type":        "array",
				"description": "Captured interaction events in recorded order",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"timestamp": map[string]interface{}{
							"type":        "integer",
							"description": "Milliseconds since session start",
						},
						"type": map[string]interface{}{
							"type": "string",
							"enum": []string{"click", "keydown", "mousemove", "scroll"},
						},
						"selector": map[string]interface{}{
							"type":        "string",
							"description": "CSS-ish selector path for the event target",
						},
						"x":             map[string]interface{}{"type": "integer"},
						"y":             map[string]interface{}{"type": "integer"},
						"key":           map[string]interface{}{"type": "string"},
						"screenshotRef": map[string]interface{}{"type": "string"},
					},
					"required": []string{"timestamp", "type"},
				},
			},
			"screenshots": map[string]interface{}{
				"type":        "integer",
				"description": "Number of screenshots stored for the session",
			},
		},
		"required": []string{"type", "session", "events"},
	}
}

func exportSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Export",
		"description": "Reports a written export artifact",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "export",
			},
			"sessionId": map[string]interface{}{
				"type":        "string",
				"description": "Exported session id",
			},
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Path the export was written to",
			},
			"bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Size of the export payload",
			},
		},
		"required": []string{"type", "sessionId", "filename", "bytes"},
	}
}

func prunedSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Pruned",
		"description": "Reports a retention pass",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "pruned",
			},
			"daysKept": map[string]interface{}{
				"type":        "integer",
				"description": "Retention window that was applied",
			},
			"removed": map[string]interface{}{
				"type":        "integer",
				"description": "Number of sessions deleted",
			},
		},
		"required": []string{"type", "daysKept", "removed"},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Error",
		"description": "Error message from vetrec",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type":  "string",
				"const": "error",
			},
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Error code (e.g., SESSION_NOT_FOUND, STORAGE_UNAVAILABLE)",
				"enum": []string{
					"INVALID_FLAGS",
					"INVALID_WHERE",
					"INVALID_GRACE",
					"INVALID_DAYS",
					"STORAGE_UNAVAILABLE",
					"DEVTOOLS_UNAVAILABLE",
					"SESSION_NOT_FOUND",
					"LIST_FAILED",
					"SHOW_FAILED",
					"EXPORT_FAILED",
					"PRUNE_FAILED",
					"SERVE_FAILED",
				},
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable error description",
			},
			"hint": map[string]interface{}{
				"type":        "string",
				"description": "Suggested next step, when one exists",
			},
		},
		"required": []string{"type", "code", "message"},
	}
}
