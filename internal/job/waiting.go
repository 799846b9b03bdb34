package job

import (
	"fmt"
	"time"

	"framesched/internal/sched"
)

// Yielder reports whether running work should hand control back.
type Yielder interface {
	ShouldYield() bool
}

// UnitFunc performs unit i of a job.
type UnitFunc func(i int) error

// Progress tracks a chunked job.
type Progress struct {
	Done   int
	Total  int
	Slices int // callback invocations, one more than the number of yields
}

// Finished reports whether every unit ran.
func (p *Progress) Finished() bool { return p.Done >= p.Total }

// Chunked returns a callback that runs work for units 0..total-1, checking y
// after every unit and returning a continuation when asked to yield. Timed-out
// invocations run to the end.
func Chunked(y Yielder, total int, work UnitFunc) (sched.Callback, *Progress) {
	p := &Progress{Total: total}
	var step sched.Callback
	step = func(didTimeout bool) (sched.Result, error) {
		p.Slices++
		for p.Done < p.Total {
			if err := work(p.Done); err != nil {
				return sched.Done(), fmt.Errorf("unit %d/%d: %w", p.Done+1, p.Total, err)
			}
			p.Done++
			if p.Done < p.Total && !didTimeout && y.ShouldYield() {
				return sched.Continue(step), nil
			}
		}
		return sched.Done(), nil
	}
	return step, p
}

// SleepWork returns a unit that just sleeps for the given duration.
func SleepWork(d time.Duration) UnitFunc {
	return func(int) error {
		time.Sleep(d)
		return nil
	}
}
