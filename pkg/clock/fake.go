package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. Timers that come due
// during Advance fire on the advancing goroutine, earliest deadline first, so a test
// observes their effects as soon as Advance returns. Callbacks must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending map[uint64]*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	id  uint64
	due time.Time
	ch  chan time.Time
	fn  func()
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial, pending: make(map[uint64]*fakeTimer)}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.scheduleLocked(d, ch, nil)
	return ch
}

// AfterFunc runs f inline when d <= 0.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}
	c.mu.Lock()
	id := c.scheduleLocked(d, nil, f)
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.pending[id]; !ok {
			return false
		}
		delete(c.pending, id)
		c.changed.Broadcast()
		return true
	}}
}

func (c *FakeClock) scheduleLocked(d time.Duration, ch chan time.Time, fn func()) uint64 {
	c.seq++
	c.pending[c.seq] = &fakeTimer{id: c.seq, due: c.now.Add(d), ch: ch, fn: fn}
	c.changed.Broadcast()
	return c.seq
}

// Advance moves the clock forward by d and fires every timer due by the new time,
// including timers scheduled by callbacks fired along the way.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, t := range due {
			if t.fn != nil {
				t.fn()
				continue
			}
			select {
			case t.ch <- target:
			default:
			}
		}
	}
}

// takeDue removes the timers due by target and returns them ordered by deadline,
// ties broken by scheduling order.
func (c *FakeClock) takeDue(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []*fakeTimer
	for id, t := range c.pending {
		if !t.due.After(target) {
			due = append(due, t)
			delete(c.pending, id)
		}
	}
	if len(due) > 0 {
		c.changed.Broadcast()
	}
	slices.SortFunc(due, func(a, b *fakeTimer) int {
		if cmp := a.due.Compare(b.due); cmp != 0 {
			return cmp
		}
		return int(a.id) - int(b.id)
	})
	return due
}

// WaitForTimers blocks until at least n timers are pending, so a test can advance
// only after the goroutine under test has armed its timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have neither fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
