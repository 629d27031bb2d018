package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// renderThrottle coalesces render requests to at most one per interval. A
// request inside the interval schedules a single deferred render for the
// remaining delta; further requests while one is scheduled are absorbed. The
// deferred render runs with whatever state is current when it fires, so the
// trailing render of a burst always reflects the latest accumulators.
type renderThrottle struct {
	fn func()

	mu      sync.Mutex
	limiter *rate.Limiter
	timer   *time.Timer
	stopped bool
}

func newRenderThrottle(interval time.Duration, fn func()) *renderThrottle {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &renderThrottle{
		fn:      fn,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Request asks for a render now or, if the interval has not elapsed since the
// last one, schedules the trailing render.
func (t *renderThrottle) Request() {
	t.mu.Lock()
	if t.stopped || t.timer != nil {
		t.mu.Unlock()
		return
	}
	delay := t.limiter.Reserve().Delay()
	if delay > 0 {
		t.timer = time.AfterFunc(delay, t.fire)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.fn()
}

func (t *renderThrottle) fire() {
	t.mu.Lock()
	t.timer = nil
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	t.fn()
}

// Stop cancels any scheduled render and ignores further requests.
func (t *renderThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
