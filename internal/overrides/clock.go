package overrides

import "time"

// Timer is the handle of a scheduled callback
type Timer interface {
	Stop() bool
}

// Clock schedules the category debounce. Tests swap in a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// debouncer runs the last scheduled callback once the input has been quiet
// for delay. Every Trigger restarts the window (trailing, not leading).
type debouncer struct {
	clock Clock
	delay time.Duration
	timer Timer
}

func newDebouncer(clock Clock, delay time.Duration) *debouncer {
	return &debouncer{clock: clock, delay: delay}
}

// Trigger cancels the pending callback, if any, and schedules f.
// Callers serialise access; a callback that already fired can still run,
// so f must check its own staleness.
func (d *debouncer) Trigger(f func()) {
	d.Cancel()
	d.timer = d.clock.AfterFunc(d.delay, f)
}

// Cancel drops the pending callback
func (d *debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
