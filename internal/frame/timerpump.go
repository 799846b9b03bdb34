package frame

import (
	"time"

	"framesched/internal/host"
)

// TimerPump serves hosts without a display: every wake-up is a zero-delay
// timer and there is no frame to yield to.
type TimerPump struct {
	timers   host.Timers
	callback FlushFunc
}

// NewTimerPump returns a pump driven only by timers.
func NewTimerPump(timers host.Timers) *TimerPump {
	return &TimerPump{timers: timers}
}

func (p *TimerPump) Request(flush FlushFunc, absoluteTimeout time.Duration) {
	if p.callback != nil {
		// A flush is pending or running; retry once it has finished.
		p.timers.After(0, func() error {
			p.Request(flush, absoluteTimeout)
			return nil
		})
		return
	}
	p.callback = flush
	p.timers.After(0, p.fire)
}

func (p *TimerPump) fire() error {
	callback := p.callback
	if callback == nil {
		return nil
	}
	defer func() { p.callback = nil }()
	return callback(false)
}

func (p *TimerPump) Cancel() { p.callback = nil }

func (p *TimerPump) ShouldYield() bool { return false }

func (p *TimerPump) FrameTime() time.Duration { return 0 }
