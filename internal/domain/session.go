package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a recording session
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Session is one complete recorded interaction run, from start to finalize.
// EndTime, Duration and Evaluation are written exactly once, by finalization.
type Session struct {
	SessionID    string        `json:"sessionId"`
	ScenarioID   string        `json:"scenarioId"`
	ScenarioName string        `json:"scenarioName"`
	StartTime    int64         `json:"startTime"`          // epoch ms
	EndTime      int64         `json:"endTime,omitempty"`  // epoch ms, set by finalize
	Duration     int64         `json:"duration,omitempty"` // ms, set by finalize
	Status       SessionStatus `json:"status"`
	Evaluation   *Evaluation   `json:"evaluation,omitempty"`
}

// NewSessionID builds the canonical session identifier: ISO timestamp plus
// scenario ID, e.g. "2026-08-29T10:00:00.000Z_create-client".
func NewSessionID(t time.Time, scenarioID string) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z") + "_" + scenarioID
}

// Scenario is the external test definition consumed for recording and
// evaluation. Content comes from an out-of-scope scenario store.
type Scenario struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	SuccessCriteria []Criterion `json:"successCriteria"`
	AgentPrompt     string      `json:"agentPrompt"`
}

// CriterionType identifies how a success criterion is checked
type CriterionType string

const (
	CriterionSelector    CriterionType = "selector"
	CriterionURLContains CriterionType = "url-contains"
)

// Criterion is one declarative pass/fail check evaluated when a session ends
type Criterion struct {
	Type      CriterionType `json:"type"`
	Selector  string        `json:"selector,omitempty"`  // for "selector"
	Value     string        `json:"value,omitempty"`     // for "url-contains"
	MustExist *bool         `json:"mustExist,omitempty"` // default true
}

// WantExist reports whether the criterion requires the selector to be present
func (c Criterion) WantExist() bool {
	if c.MustExist == nil {
		return true
	}
	return *c.MustExist
}

// EvalResult summarizes how a session scored against its criteria
type EvalResult string

const (
	EvalSuccess EvalResult = "success"
	EvalFailure EvalResult = "failure"
	EvalPartial EvalResult = "partial"
	EvalUnknown EvalResult = "unknown"
)

// Evaluation is the scored outcome of a finished session
type Evaluation struct {
	Result         EvalResult `json:"result"`
	CriteriaMet    int        `json:"criteriaMet"`
	CriteriaFailed int        `json:"criteriaFailed"`
}
