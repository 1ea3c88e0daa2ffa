// Package clock abstracts time so polling, token expiry and retry backoff can
// be driven by tests without sleeping.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock tells the time and schedules wakeups.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Or returns c, or the wall clock when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}

// Fake is a manually advanced clock. Channels returned by After fire once
// Advance moves the time to or past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake returns a fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := f.now.Add(d)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, waiter{at: at, ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires every due waiter in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	sort.SliceStable(f.waiters, func(i, j int) bool {
		return f.waiters[i].at.Before(f.waiters[j].at)
	})
	var due []waiter
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.at.After(now) {
			due = append(due, w)
		} else {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
	f.mu.Unlock()

	for _, w := range due {
		w.ch <- now
	}
}

// Waiters returns the number of pending After channels. Tests use it to wait
// until the code under test is blocked on the clock.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil spins until at least n waiters are pending.
func (f *Fake) BlockUntil(n int) {
	for f.Waiters() < n {
		time.Sleep(time.Millisecond)
	}
}

// Timer adapts a Clock to the Start/Stop/C timer that backoff retries wait
// on, so a Fake clock also drives retry waits.
type Timer struct {
	clk  Clock
	real *time.Timer
	ch   <-chan time.Time
}

// NewTimer returns a timer driven by c, or by the wall clock when c is nil.
func NewTimer(c Clock) *Timer {
	return &Timer{clk: Or(c)}
}

// Start arms the timer to fire after d.
func (t *Timer) Start(d time.Duration) {
	if _, ok := t.clk.(Real); ok {
		if t.real == nil {
			t.real = time.NewTimer(d)
		} else {
			t.real.Reset(d)
		}
		t.ch = t.real.C
		return
	}
	t.ch = t.clk.After(d)
}

// Stop releases the wall-clock timer, if any.
func (t *Timer) Stop() {
	if t.real != nil {
		t.real.Stop()
	}
}

// C returns the channel of the last Start.
func (t *Timer) C() <-chan time.Time {
	return t.ch
}
