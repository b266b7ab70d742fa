package recorder

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vetsimlabs/vetrec/internal/domain"
)

// throttle rate-limits a high-frequency event stream to at most one sample
// per interval. It is trailing-edge: each interval emits the latest sample
// offered during it, so the final position before a pause is never lost.
type throttle struct {
	interval time.Duration
	clock    clock.Clock
	emit     func(domain.Event)

	mu      sync.Mutex
	pending *domain.Event
	timer   *clock.Timer
}

func newThrottle(interval time.Duration, clk clock.Clock, emit func(domain.Event)) *throttle {
	return &throttle{interval: interval, clock: clk, emit: emit}
}

// Offer submits a sample, replacing any pending one. The first offer of an
// interval arms the timer; the emit callback decides what timestamp the
// sample carries.
func (t *throttle) Offer(ev domain.Event) {
	t.mu.Lock()
	t.pending = &ev
	if t.timer == nil {
		t.timer = t.clock.AfterFunc(t.interval, t.fire)
	}
	t.mu.Unlock()
}

func (t *throttle) fire() {
	t.mu.Lock()
	t.timer = nil
	ev := t.pending
	t.pending = nil
	t.mu.Unlock()
	if ev != nil {
		t.emit(*ev)
	}
}

// Flush emits any pending trailing sample immediately and cancels the
// interval timer. Called when a session ends so the last sample still lands
// before finalization.
func (t *throttle) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	ev := t.pending
	t.pending = nil
	t.mu.Unlock()
	if ev != nil {
		t.emit(*ev)
	}
}

// Reset discards throttle state between sessions
func (t *throttle) Reset() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.mu.Unlock()
}
