package auth

import (
	"sync"
	"time"
)

// IdleMonitor owns one countdown timer per session. Activity resets the
// countdown; expiry invokes the callback exactly once. There is never more
// than one live timer per session: Touch cancels and reschedules instead of
// stacking.
type IdleMonitor struct {
	mu       sync.Mutex
	timers   map[string]*idleTimer
	onExpire func(sessionID string)
	closed   bool
}

// gen guards against a timer that fired concurrently with a Touch: the stale
// firing sees a newer generation and backs off.
type idleTimer struct {
	timer   *time.Timer
	timeout time.Duration
	gen     uint64
}

// NewIdleMonitor creates a monitor that calls onExpire with the session ID
// when a session's countdown elapses.
func NewIdleMonitor(onExpire func(sessionID string)) *IdleMonitor {
	return &IdleMonitor{
		timers:   make(map[string]*idleTimer),
		onExpire: onExpire,
	}
}

// Start begins the countdown for a session. A non-positive timeout disables
// idle tracking for the session.
func (im *IdleMonitor) Start(sessionID string, timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed {
		return
	}

	var gen uint64
	if existing, ok := im.timers[sessionID]; ok {
		existing.timer.Stop()
		gen = existing.gen + 1
	}

	it := &idleTimer{timeout: timeout, gen: gen}
	it.timer = time.AfterFunc(timeout, func() { im.expire(sessionID, gen) })
	im.timers[sessionID] = it
}

// Touch resets the countdown for a tracked session. Untracked sessions
// (logged out, or in a realm without idle timeout) are ignored.
func (im *IdleMonitor) Touch(sessionID string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed {
		return
	}
	existing, ok := im.timers[sessionID]
	if !ok {
		return
	}
	existing.timer.Stop()
	existing.gen++
	gen := existing.gen
	existing.timer = time.AfterFunc(existing.timeout, func() { im.expire(sessionID, gen) })
}

// Stop cancels the countdown for a session. After Stop returns, the expiry
// callback will not fire for that session.
func (im *IdleMonitor) Stop(sessionID string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if existing, ok := im.timers[sessionID]; ok {
		existing.timer.Stop()
		delete(im.timers, sessionID)
	}
}

// Close cancels all pending countdowns. No expiry callbacks fire after Close.
func (im *IdleMonitor) Close() {
	im.mu.Lock()
	defer im.mu.Unlock()

	for sessionID, existing := range im.timers {
		existing.timer.Stop()
		delete(im.timers, sessionID)
	}
	im.closed = true
}

func (im *IdleMonitor) expire(sessionID string, gen uint64) {
	im.mu.Lock()
	existing, ok := im.timers[sessionID]
	if !ok || im.closed || existing.gen != gen {
		im.mu.Unlock()
		return
	}
	delete(im.timers, sessionID)
	im.mu.Unlock()

	im.onExpire(sessionID)
}
