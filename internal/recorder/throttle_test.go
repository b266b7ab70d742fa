package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/vetsimlabs/vetrec/internal/domain"
)

func collectThrottle(interval time.Duration, clk clock.Clock) (*throttle, func() []domain.Event) {
	var mu sync.Mutex
	var emitted []domain.Event
	th := newThrottle(interval, clk, func(ev domain.Event) {
		mu.Lock()
		emitted = append(emitted, ev)
		mu.Unlock()
	})
	return th, func() []domain.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]domain.Event, len(emitted))
		copy(out, emitted)
		return out
	}
}

func TestThrottleEmitsLatestSamplePerInterval(t *testing.T) {
	clk := clock.NewMock()
	th, emitted := collectThrottle(100*time.Millisecond, clk)

	for i := 0; i < 10; i++ {
		th.Offer(domain.Event{Type: domain.EventMousemove, Timestamp: int64(i * 10), X: i})
		clk.Add(10 * time.Millisecond)
	}

	got := emitted()
	assert.Len(t, got, 1)
	// trailing edge: the latest sample of the interval was kept
	assert.Equal(t, 9, got[0].X)
}

func TestThrottleFlushEmitsPending(t *testing.T) {
	clk := clock.NewMock()
	th, emitted := collectThrottle(100*time.Millisecond, clk)

	th.Offer(domain.Event{Type: domain.EventScroll, X: 1})
	th.Offer(domain.Event{Type: domain.EventScroll, X: 2})
	assert.Empty(t, emitted())

	th.Flush()
	got := emitted()
	assert.Len(t, got, 1)
	assert.Equal(t, 2, got[0].X)

	// flush is idempotent
	th.Flush()
	assert.Len(t, emitted(), 1)
}

func TestThrottleResetDropsPending(t *testing.T) {
	clk := clock.NewMock()
	th, emitted := collectThrottle(100*time.Millisecond, clk)

	th.Offer(domain.Event{Type: domain.EventScroll, X: 1})
	th.Reset()
	clk.Add(time.Second)
	assert.Empty(t, emitted())
}
