// Package recorder owns the active-session state machine: it timestamps and
// throttles incoming interaction events, triggers screenshot capture for
// discrete events, and drives the storage layer. Exactly one session may be
// active per recorder instance.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vetsimlabs/vetrec/internal/domain"
	"go.uber.org/zap"
)

// Throttle intervals bound CPU and storage cost of high-frequency events.
const (
	mousemoveInterval = 100 * time.Millisecond
	scrollInterval    = 200 * time.Millisecond
)

var (
	// ErrNoActiveSession flags End or event handling outside a session.
	ErrNoActiveSession = errors.New("no active recording session")
	// ErrFinalizing flags a Start while the previous session is still
	// being finalized.
	ErrFinalizing = errors.New("previous session still finalizing")
)

// Store is the slice of the storage contract the recorder drives
type Store interface {
	CreateSession(ctx context.Context, meta domain.Session) error
	AppendEvent(ctx context.Context, sessionID string, ev domain.Event) error
	SaveScreenshot(ctx context.Context, sessionID string, shot domain.Screenshot) error
	FinalizeSession(ctx context.Context, meta domain.Session) error
}

// Capturer renders the current viewport; a nil error with image bytes on
// success. Failures are absorbed: the event persists without a screenshot.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Evaluator scores the scenario when the session ends
type Evaluator interface {
	Evaluate(ctx context.Context, scenario *domain.Scenario) domain.Evaluation
}

// RawEvent is one interaction as reported by the in-page shim
type RawEvent struct {
	Type domain.EventType  `json:"type"`
	X    int               `json:"x,omitempty"`
	Y    int               `json:"y,omitempty"`
	Key  string            `json:"key,omitempty"`
	Path []domain.PathNode `json:"path,omitempty"`
}

type state int

const (
	stateIdle state = iota
	stateActive
	stateFinalizing
)

// Recorder is the single owner of the active-session pointer
type Recorder struct {
	store    Store
	capturer Capturer
	eval     Evaluator
	clock    clock.Clock
	log      *zap.SugaredLogger

	mu        sync.Mutex
	state     state
	scenario  *domain.Scenario
	meta      domain.Session
	startedAt time.Time
	events    []domain.Event
	persist   bool

	inflight sync.WaitGroup

	moveThrottle   *throttle
	scrollThrottle *throttle
}

// New wires a recorder. capturer may be nil (no screenshots, e.g. when no
// browser is attached); store may be nil for memory-only operation.
func New(store Store, capturer Capturer, eval Evaluator, clk clock.Clock, log *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		store:    store,
		capturer: capturer,
		eval:     eval,
		clock:    clk,
		log:      log,
	}
	r.moveThrottle = newThrottle(mousemoveInterval, clk, r.appendThrottled)
	r.scrollThrottle = newThrottle(scrollInterval, clk, r.appendThrottled)
	return r
}

// Start begins recording for the scenario. Calling Start while a session is
// already active is an idempotent no-op returning the active session ID; a
// storage failure degrades to memory-only recording instead of failing the
// run.
func (r *Recorder) Start(ctx context.Context, scenario domain.Scenario) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateActive:
		r.log.Debugw("start ignored, session already active", "session", r.meta.SessionID)
		return r.meta.SessionID, nil
	case stateFinalizing:
		return "", ErrFinalizing
	}

	now := r.clock.Now()
	meta := domain.Session{
		SessionID:    domain.NewSessionID(now, scenario.ID),
		ScenarioID:   scenario.ID,
		ScenarioName: scenario.Name,
		StartTime:    now.UnixMilli(),
		Status:       domain.StatusInProgress,
	}

	r.persist = r.store != nil
	if r.persist {
		if err := r.store.CreateSession(ctx, meta); err != nil {
			// Degrade rather than refuse: the caller can still obtain
			// the JSON download from the in-memory buffer.
			r.log.Warnw("storage init failed, recording in memory only",
				"session", meta.SessionID, "error", err)
			r.persist = false
		}
	}

	sc := scenario
	r.scenario = &sc
	r.meta = meta
	r.startedAt = now
	r.events = r.events[:0]
	r.moveThrottle.Reset()
	r.scrollThrottle.Reset()
	r.state = stateActive

	r.log.Infow("session started", "session", meta.SessionID, "scenario", scenario.ID, "persist", r.persist)
	return meta.SessionID, nil
}

// HandleEvent records one interaction. Discrete events (click, keydown)
// also trigger an asynchronous screenshot capture that never blocks this
// call.
func (r *Recorder) HandleEvent(ctx context.Context, raw RawEvent) error {
	if !raw.Type.Valid() {
		return fmt.Errorf("%w: %q", errUnknownEventType, raw.Type)
	}

	r.mu.Lock()
	if r.state != stateActive {
		r.mu.Unlock()
		return ErrNoActiveSession
	}
	ev := domain.Event{
		Timestamp: r.clock.Now().Sub(r.startedAt).Milliseconds(),
		Type:      raw.Type,
		Selector:  domain.DeriveSelector(raw.Path),
		X:         raw.X,
		Y:         raw.Y,
		Key:       raw.Key,
	}
	r.mu.Unlock()

	switch raw.Type {
	case domain.EventMousemove:
		r.moveThrottle.Offer(ev)
	case domain.EventScroll:
		r.scrollThrottle.Offer(ev)
	default:
		r.append(ev)
		r.captureAsync(ev.Timestamp)
	}
	return nil
}

var errUnknownEventType = errors.New("unknown event type")

// appendThrottled is the throttle emit path; a trailing sample may arrive
// while the session is finalizing and is still accepted. The sample is
// re-stamped at emission so a discrete event landing during the throttle
// interval cannot put the log out of timestamp order.
func (r *Recorder) appendThrottled(ev domain.Event) {
	r.mu.Lock()
	if r.state == stateIdle {
		r.mu.Unlock()
		return
	}
	ev.Timestamp = r.clock.Now().Sub(r.startedAt).Milliseconds()
	r.mu.Unlock()
	r.append(ev)
}

func (r *Recorder) append(ev domain.Event) {
	r.mu.Lock()
	if r.state == stateIdle {
		r.mu.Unlock()
		return
	}
	sessionID := r.meta.SessionID
	persist := r.persist
	r.events = append(r.events, ev)
	r.mu.Unlock()

	if !persist {
		return
	}
	// Synchronous append keeps the on-disk log in arrival order. A quota
	// error is surfaced through logs; the in-memory buffer still holds the
	// event for the JSON download fallback.
	if err := r.store.AppendEvent(context.Background(), sessionID, ev); err != nil {
		r.log.Errorw("event write failed", "session", sessionID, "error", err)
	}
}

// captureAsync fires a screenshot capture for a discrete event. Association
// back to the event is by timestamp, never by buffer index, so out-of-order
// completion of concurrent captures cannot mis-associate images.
func (r *Recorder) captureAsync(timestamp int64) {
	if r.capturer == nil {
		return
	}
	r.mu.Lock()
	if r.state != stateActive {
		// finalization already started; a late capture must not land
		// after the session is frozen
		r.mu.Unlock()
		return
	}
	sessionID := r.meta.SessionID
	persist := r.persist
	// registered under the lock so End's drain cannot miss this capture
	r.inflight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.inflight.Done()

		img, err := r.capturer.Capture(context.Background())
		if err != nil || len(img) == 0 {
			r.log.Warnw("screenshot capture failed, event kept without image",
				"session", sessionID, "timestamp", timestamp, "error", err)
			return
		}

		r.attachRef(sessionID, timestamp)

		if persist {
			shot := domain.Screenshot{Timestamp: timestamp, Image: img}
			if err := r.store.SaveScreenshot(context.Background(), sessionID, shot); err != nil {
				r.log.Errorw("screenshot write failed", "session", sessionID, "error", err)
			}
		}
	}()
}

// attachRef marks the buffered event carrying this timestamp as having a
// screenshot.
func (r *Recorder) attachRef(sessionID string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta.SessionID != sessionID {
		return
	}
	for i := range r.events {
		if r.events[i].Timestamp == timestamp && r.events[i].Type.Discrete() {
			r.events[i].ScreenshotRef = strconv.FormatInt(timestamp, 10)
			return
		}
	}
}

// EndResult is the transport payload returned when a session ends
type EndResult struct {
	SessionID  string            `json:"sessionId"`
	Filename   string            `json:"filename"`
	Evaluation domain.Evaluation `json:"evaluation"`
	Payload    []byte            `json:"-"`
}

// downloadArtifact is the JSON shape of the offered download
type downloadArtifact struct {
	Test       string            `json:"test"`
	StartedAt  string            `json:"startedAt"`
	Evaluation domain.Evaluation `json:"evaluation"`
	Logs       []domain.Event    `json:"logs"`
	SessionID  string            `json:"sessionId"`
}

// End stops the active session: it stops accepting events first, flushes
// trailing throttle samples, drains in-flight screenshot writes, then
// evaluates and finalizes. The in-memory buffer survives storage failure so
// the download payload is always produced.
func (r *Recorder) End(ctx context.Context) (*EndResult, error) {
	r.mu.Lock()
	if r.state != stateActive {
		r.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	r.state = stateFinalizing
	r.mu.Unlock()

	// Trailing samples land before the drain so their captures are counted.
	r.moveThrottle.Flush()
	r.scrollThrottle.Flush()

	// Drain in-flight screenshot writes; nothing may land after finalize.
	r.inflight.Wait()

	r.mu.Lock()
	now := r.clock.Now()
	meta := r.meta
	meta.EndTime = now.UnixMilli()
	meta.Duration = now.Sub(r.startedAt).Milliseconds()
	meta.Status = domain.StatusCompleted
	scenario := r.scenario
	events := make([]domain.Event, len(r.events))
	copy(events, r.events)
	persist := r.persist
	r.mu.Unlock()

	evaluation := r.eval.Evaluate(ctx, scenario)
	meta.Evaluation = &evaluation

	var finalizeErr error
	if persist {
		if err := r.store.FinalizeSession(ctx, meta); err != nil {
			r.log.Errorw("finalize failed", "session", meta.SessionID, "error", err)
			finalizeErr = err
		}
	}

	artifact := downloadArtifact{
		Test:       meta.ScenarioName,
		StartedAt:  time.UnixMilli(meta.StartTime).UTC().Format(time.RFC3339Nano),
		Evaluation: evaluation,
		Logs:       events,
		SessionID:  meta.SessionID,
	}
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		payload = []byte("{}")
	}

	r.mu.Lock()
	r.state = stateIdle
	r.scenario = nil
	r.mu.Unlock()

	r.log.Infow("session ended",
		"session", meta.SessionID,
		"duration_ms", meta.Duration,
		"events", len(events),
		"result", evaluation.Result)

	return &EndResult{
		SessionID:  meta.SessionID,
		Filename:   fmt.Sprintf("%s-%d.json", meta.ScenarioID, meta.EndTime),
		Evaluation: evaluation,
		Payload:    payload,
	}, finalizeErr
}

// Active reports whether a session is currently recording, and its ID
func (r *Recorder) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta.SessionID, r.state == stateActive
}

// Events returns a copy of the in-memory buffer, mainly for tests and the
// download fallback path.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}
