package engine

import "time"

// Debouncer coalesces rapid filter edits so the expensive recompile and
// refilter run once per burst. RecordEdit arms (or re-arms) the timer;
// Tick reports when the quiet period has elapsed. Interactive consumers
// drive it per keystroke; a one-shot consumer that sets criteria a
// single time at startup has no edit bursts and can skip it entirely.
type Debouncer struct {
	delay    time.Duration
	deadline time.Time
	armed    bool
}

// NewDebouncer returns a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// RecordEdit notes an edit at now, pushing the deadline out by the full
// quiet period.
func (d *Debouncer) RecordEdit(now time.Time) {
	d.armed = true
	d.deadline = now.Add(d.delay)
}

// Tick reports whether the quiet period has elapsed since the last
// edit. A true return disarms the debouncer; the caller runs the
// recompute exactly once.
func (d *Debouncer) Tick(now time.Time) bool {
	if !d.armed || now.Before(d.deadline) {
		return false
	}
	d.armed = false
	return true
}

// Pending reports whether an edit is waiting to settle.
func (d *Debouncer) Pending() bool { return d.armed }

// Flush disarms and reports whether an edit was pending, for forcing an
// immediate recompute (e.g. on Enter).
func (d *Debouncer) Flush() bool {
	was := d.armed
	d.armed = false
	return was
}
