// Package timer is the discussion countdown. It has its own state,
// completely independent of the game session, and its only observable
// side effect is firing the expiry callback so the UI can sound an alarm.
package timer

import (
	"sync"
	"time"
)

// Timer counts down in one-second ticks. All methods are safe to call
// from the serving goroutines.
type Timer struct {
	mu        sync.Mutex
	remaining int
	running   bool
	stop      chan struct{}

	// onExpire is called exactly once each time the countdown hits zero.
	onExpire func()
}

// New returns a stopped timer. The callback may be nil.
func New(onExpire func()) *Timer {
	return &Timer{onExpire: onExpire}
}

// Start begins counting down from the given number of seconds, replacing
// any countdown already in progress.
func (t *Timer) Start(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	if seconds <= 0 {
		return
	}

	t.remaining = seconds
	t.running = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

func (t *Timer) run(stop chan struct{}) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if expired := t.decrement(stop); expired {
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}

func (t *Timer) decrement(stop chan struct{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A pause or reset may have raced the tick.
	if t.stop != stop || !t.running {
		return false
	}

	t.remaining--
	if t.remaining > 0 {
		return false
	}

	t.remaining = 0
	t.running = false
	t.stop = nil
	return true
}

// Pause freezes the countdown, keeping the remaining time.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Resume continues a paused countdown. Calling it on a running or expired
// timer does nothing.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.remaining <= 0 {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

// Reset stops the countdown and clears the remaining time.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.remaining = 0
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.running = false
}

// Remaining returns the seconds left and whether the timer is counting.
func (t *Timer) Remaining() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining, t.running
}
