package auth_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhaus/storeauth/auth"
)

// expiryRecorder counts expiry callbacks per session
type expiryRecorder struct {
	mu    sync.Mutex
	fired map[string]int
}

func newExpiryRecorder() *expiryRecorder {
	return &expiryRecorder{fired: make(map[string]int)}
}

func (r *expiryRecorder) record(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired[sessionID]++
}

func (r *expiryRecorder) count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[sessionID]
}

func (r *expiryRecorder) waitFor(t *testing.T, sessionID string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.count(sessionID) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never expired", sessionID)
}

func TestIdleMonitor_ExpiresUntouchedSession(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 30*time.Millisecond)
	rec.waitFor(t, "s1", time.Second)

	// Fires exactly once
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, rec.count("s1"))
}

func TestIdleMonitor_TouchDefersExpiry(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 60*time.Millisecond)

	// Keep touching well within the timeout; the countdown must keep resetting
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		im.Touch("s1")
	}
	require.Equal(t, 0, rec.count("s1"))

	// Once the touches stop, the session expires
	rec.waitFor(t, "s1", time.Second)
	assert.Equal(t, 1, rec.count("s1"))
}

func TestIdleMonitor_RapidTouchesDoNotStackTimers(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 40*time.Millisecond)
	for i := 0; i < 50; i++ {
		im.Touch("s1")
	}

	rec.waitFor(t, "s1", time.Second)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count("s1"))
}

func TestIdleMonitor_StopPreventsExpiry(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 30*time.Millisecond)
	im.Stop("s1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count("s1"))
}

func TestIdleMonitor_ZeroTimeoutDisablesTracking(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 0)
	im.Touch("s1") // untracked, must not panic or register anything

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count("s1"))
}

func TestIdleMonitor_TouchAfterStopIsIgnored(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("s1", 30*time.Millisecond)
	im.Stop("s1")
	im.Touch("s1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count("s1"))
}

func TestIdleMonitor_CloseCancelsAllTimers(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)

	im.Start("s1", 30*time.Millisecond)
	im.Start("s2", 30*time.Millisecond)
	im.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count("s1"))
	assert.Equal(t, 0, rec.count("s2"))

	// Starts after Close are ignored
	im.Start("s3", 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count("s3"))
}

func TestIdleMonitor_SessionsExpireIndependently(t *testing.T) {
	rec := newExpiryRecorder()
	im := auth.NewIdleMonitor(rec.record)
	defer im.Close()

	im.Start("short", 30*time.Millisecond)
	im.Start("long", 500*time.Millisecond)

	rec.waitFor(t, "short", time.Second)
	assert.Equal(t, 0, rec.count("long"))
}
