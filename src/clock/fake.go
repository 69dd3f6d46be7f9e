package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time moves only when Advance is
// called; due callbacks run synchronously in the goroutine that calls
// Advance, in deadline order. Do not call Advance from a callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeTimer
	seq     uint64
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	seq      uint64
	callback func()
	done     bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f at Now()+d. If d <= 0, f runs before AfterFunc
// returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return &fakeTimer{clock: c, done: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{
		clock:    c,
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.removeLocked(t)
	return true
}

func (c *FakeClock) removeLocked(t *fakeTimer) {
	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is reached, including timers armed by callbacks that fire
// within the same window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.removeLocked(next)
		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		c.mu.Unlock()

		next.callback()
	}
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(c.waiters))
	for _, w := range c.waiters {
		if !w.deadline.After(target) {
			due = append(due, w)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// NextDeadline returns the duration until the earliest armed timer, and
// false when none is armed.
func (c *FakeClock) NextDeadline() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return 0, false
	}
	earliest := c.waiters[0].deadline
	for _, w := range c.waiters[1:] {
		if w.deadline.Before(earliest) {
			earliest = w.deadline
		}
	}
	return earliest.Sub(c.current), true
}
