// internal/voice/debounce.go
package voice

import (
	"sync"
	"time"
)

// AfterFunc schedules f after d and returns a function that cancels it.
// time.AfterFunc satisfies it through SystemAfterFunc.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// SystemAfterFunc schedules on the runtime timer.
func SystemAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Debouncer commits the most recent value once no new value has arrived for
// its delay. Every Push restarts the deadline; a timer that fires after being
// superseded is ignored. A Debouncer commits at most once.
type Debouncer struct {
	delay time.Duration
	after AfterFunc
	fire  func(string)

	mu      sync.Mutex
	gen     uint64
	value   string
	stop    func() bool
	pending bool
	done    bool
}

// NewDebouncer creates a debouncer that calls fire with the committed value.
// fire runs on the scheduler's goroutine.
func NewDebouncer(delay time.Duration, after AfterFunc, fire func(string)) *Debouncer {
	if after == nil {
		after = SystemAfterFunc
	}
	return &Debouncer{delay: delay, after: after, fire: fire}
}

// Push records v and restarts the deadline.
func (d *Debouncer) Push(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	if d.stop != nil {
		d.stop()
	}
	d.gen++
	gen := d.gen
	d.value = v
	d.pending = true
	d.stop = d.after(d.delay, func() { d.commit(gen) })
}

// Pending reports whether a value is waiting for its deadline.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops any pending value. The debouncer never commits afterwards.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	d.pending = false
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}

func (d *Debouncer) commit(gen uint64) {
	d.mu.Lock()
	if d.done || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.done = true
	d.pending = false
	v := d.value
	d.mu.Unlock()
	d.fire(v)
}
