package pin

import (
	"sync"
	"time"
)

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

func (c *SystemClock) Sleep(ms int64) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// FakeClock is a manually driven clock. Sleep advances it instead of
// blocking, which makes every blocking routine deterministic under test.
type FakeClock struct {
	mu  sync.Mutex
	now int64
}

func NewFakeClock(start int64) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ms int64) {
	if ms <= 0 {
		return
	}
	c.Advance(ms)
}

// Advance moves the clock forward by ms.
func (c *FakeClock) Advance(ms int64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

// Set moves the clock to an absolute time. Moving backwards is ignored.
func (c *FakeClock) Set(ms int64) {
	c.mu.Lock()
	if ms > c.now {
		c.now = ms
	}
	c.mu.Unlock()
}
