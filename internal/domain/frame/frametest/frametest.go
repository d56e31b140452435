// Package frametest provides a manual clock and a recording frame for
// driving frame.Controller deterministically in tests.
package frametest

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
)

// Clock is a manually advanced frame.Clock. Callbacks run synchronously on
// the goroutine calling Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewClock creates a clock at time zero
func NewClock() *Clock {
	return &Clock{}
}

// AfterFunc schedules f to run once the clock has advanced by d
func (c *Clock) AfterFunc(d time.Duration, f func()) frame.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &timer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop prevents the timer from firing
func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing due timers in deadline order
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d

	for {
		next := c.nextDue(target)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// Now returns the elapsed fake time
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending returns the number of timers still waiting to fire
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (c *Clock) nextDue(target time.Duration) *timer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].at < c.timers[j].at
	})
	if len(c.timers) == 0 || c.timers[0].at > target {
		return nil
	}
	return c.timers[0]
}

// Frame records every navigation
type Frame struct {
	mu   sync.Mutex
	urls []string
}

// Navigate records url
func (f *Frame) Navigate(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
}

// Navigations returns every URL navigated to, oldest first
func (f *Frame) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// Last returns the most recent URL, or "" if none
func (f *Frame) Last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urls) == 0 {
		return ""
	}
	return f.urls[len(f.urls)-1]
}

// Reset forgets recorded navigations
func (f *Frame) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = nil
}
