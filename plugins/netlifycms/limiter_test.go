package netlifycms

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, max int, window time.Duration) (*LoginLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLoginLimiter(max, window)
	l.now = clock.Now
	t.Cleanup(l.Stop)
	return l, clock
}

// fail records a failed attempt when the IP is still allowed to try.
func fail(l *LoginLimiter, ip string) bool {
	if !l.Check(ip) {
		return false
	}
	l.Record(ip)
	return true
}

func TestLoginLimiterBlocksAfterMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ip := "203.0.113.10"

	assert.True(t, fail(limiter, ip), "first attempt")
	assert.True(t, fail(limiter, ip), "second attempt")
	assert.False(t, fail(limiter, ip), "third attempt")
}

func TestLoginLimiterResetsAfterWindow(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.20"

	assert.True(t, fail(limiter, ip))
	assert.False(t, fail(limiter, ip))

	clock.Advance(61 * time.Second)
	assert.True(t, fail(limiter, ip), "attempt after window")
}

func TestLoginLimiterIsPerIP(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	assert.True(t, fail(limiter, "203.0.113.30"))
	assert.True(t, fail(limiter, "203.0.113.31"), "second ip is independent")
	assert.False(t, fail(limiter, "203.0.113.30"))
}

func TestLoginLimiterCheckDoesNotRecord(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.40"

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Check(ip))
	}
	limiter.Record(ip)
	assert.False(t, limiter.Check(ip))

	limiter.Reset(ip)
	assert.True(t, limiter.Check(ip))
}

func TestLoginLimiterStopIsIdempotent(t *testing.T) {
	limiter := NewLoginLimiter(1, time.Millisecond)
	assert.NotPanics(t, func() {
		limiter.Stop()
		limiter.Stop()
	})
}
