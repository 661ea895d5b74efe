package scanner

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultDebounce is the delay between the first mutation and the publish
// that collapses it with any that follow.
const DefaultDebounce = 100 * time.Millisecond

// Debouncer is a pending flag plus at most one armed timer. It is not safe
// for concurrent use; the Engine guards it with its lock.
type Debouncer struct {
	clock   clock.Clock
	delay   time.Duration
	timer   *clock.Timer
	seq     uint64
	pending bool
}

// NewDebouncer creates a disarmed debouncer.
func NewDebouncer(c clock.Clock, delay time.Duration) *Debouncer {
	if c == nil {
		c = clock.New()
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{clock: c, delay: delay}
}

// Schedule marks work pending and arms the timer unless it is already
// armed. fire runs on the clock's goroutine with the token to pass to Fired.
func (d *Debouncer) Schedule(fire func(token uint64)) {
	d.pending = true
	if d.timer != nil {
		return
	}
	d.seq++
	token := d.seq
	d.timer = d.clock.AfterFunc(d.delay, func() { fire(token) })
}

// Fired disarms the timer and reports whether work was pending. Tokens
// from a timer that was since stopped or replaced report false.
func (d *Debouncer) Fired(token uint64) bool {
	if d.timer == nil || token != d.seq {
		return false
	}
	d.timer = nil
	pending := d.pending
	d.pending = false
	return pending
}

// Clear drops pending work but leaves an armed timer to fire as a no-op.
func (d *Debouncer) Clear() {
	d.pending = false
}

// Stop disarms the timer and drops pending work.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// Pending reports whether work is waiting for the timer.
func (d *Debouncer) Pending() bool {
	return d.pending
}

// Armed reports whether a timer is outstanding.
func (d *Debouncer) Armed() bool {
	return d.timer != nil
}
