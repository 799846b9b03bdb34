package frame

import "time"

// Budget tracks how much work fits into one display frame. It starts by
// assuming a slow 30Hz display and tightens its estimate once refreshes show
// the display is faster.
type Budget struct {
	min      time.Duration
	previous time.Duration
	active   time.Duration
	deadline time.Duration
}

// NewBudget returns a Budget with the given starting frame time and floor.
func NewBudget(initial, min time.Duration) *Budget {
	return &Budget{
		min:      min,
		previous: initial,
		active:   initial,
	}
}

// Observe records a refresh at frameTime and moves the deadline to the end of
// that frame.
//
// One short frame is usually a catch-up after a long one, so the estimate only
// shrinks after two consecutive frames come in under it, and then only to the
// longer of the two.
func (b *Budget) Observe(frameTime time.Duration) {
	next := frameTime - b.deadline + b.active
	if next < b.active && b.previous < b.active {
		if next < b.min {
			next = b.min
		}
		b.active = max(next, b.previous)
	} else {
		b.previous = next
	}
	b.deadline = frameTime + b.active
}

// FrameTime is the current per-frame estimate.
func (b *Budget) FrameTime() time.Duration { return b.active }

// Deadline is the end of the current frame.
func (b *Budget) Deadline() time.Duration { return b.deadline }

// Remaining reports whether now is still inside the current frame.
func (b *Budget) Remaining(now time.Duration) bool {
	return b.deadline > now
}
