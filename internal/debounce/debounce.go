// Package debounce delays an action until its trigger has been quiet for a while.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs action with the most recent argument once delay has passed
// without another Trigger. It owns a single timer; each Trigger cancels the
// pending run. Safe for concurrent use.
type Debouncer[T any] struct {
	delay  time.Duration
	action func(T)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New returns an idle Debouncer.
func New[T any](delay time.Duration, action func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, action: action}
}

// Trigger (re)arms the timer with arg, replacing any pending run.
func (d *Debouncer[T]) Trigger(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A timer that fired while being replaced must not run.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.action(arg)
	})
}

// Stop cancels the pending run, if any.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a run is armed.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
