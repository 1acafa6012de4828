// Package debounce coalesces bursts of calls into one call after a quiet
// period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recently triggered function once no new trigger
// has arrived for the configured delay.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending func()

	// running is closed when the function a timer took finishes.
	running chan struct{}
}

// New returns a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger replaces the pending function with fn and restarts the timer.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn
	d.stopLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// stopLocked stops the current timer. A timer that already expired finds a
// newer generation and does nothing.
func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	done := make(chan struct{})
	d.running = done
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.running == done {
			d.running = nil
		}
		d.mu.Unlock()
		close(done)
	}()
	fn()
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Cancel drops the pending function without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.pending = nil
}

// Flush runs the pending function now, on the caller's goroutine. If a
// timer has already taken the function, Flush waits for it to finish.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	d.stopLocked()
	fn := d.pending
	d.pending = nil
	running := d.running
	d.mu.Unlock()

	if running != nil {
		<-running
	}
	if fn != nil {
		fn()
	}
}
