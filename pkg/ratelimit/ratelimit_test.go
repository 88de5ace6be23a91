package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(max int, window, cooldown time.Duration) (*Limiter, *time.Time) {
	rl := New(max, window, cooldown)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Minute, 0)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("u1"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "keys are independent")
}

func TestLimiter_CooldownBlocksThenReleases(t *testing.T) {
	rl, now := newTestLimiter(1, 10*time.Second, 30*time.Second)
	defer rl.Stop()

	require.True(t, rl.Allow("u1"))
	require.False(t, rl.Allow("u1"))
	assert.Equal(t, 31, rl.RetryAfterSeconds("u1"))

	// Window geçti ama cooldown hala sürüyor
	*now = now.Add(15 * time.Second)
	assert.False(t, rl.Allow("u1"))

	*now = now.Add(16 * time.Second)
	assert.True(t, rl.Allow("u1"))
	assert.Equal(t, 0, rl.RetryAfterSeconds("u1"))
}

func TestLimiter_WindowReset(t *testing.T) {
	rl, now := newTestLimiter(2, 10*time.Second, 0)
	defer rl.Stop()

	require.True(t, rl.Allow("u1"))
	require.True(t, rl.Allow("u1"))

	*now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("u1"))
}

func TestLimiter_ZeroMaxDisables(t *testing.T) {
	rl := New(0, time.Second, time.Second)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("u1"))
	}
}

func TestLimiter_ResetAndCleanup(t *testing.T) {
	rl, now := newTestLimiter(1, time.Second, 0)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Reset("a")
	assert.True(t, rl.Allow("a"))

	*now = now.Add(5 * time.Second)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.buckets)
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(1, time.Second, 0)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ExtractIP(r))

	r.Header.Set("X-Real-IP", "192.168.1.2")
	assert.Equal(t, "192.168.1.2", ExtractIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ExtractIP(r))
}
