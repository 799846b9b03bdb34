// Package frame turns "flush the scheduler by deadline D" into host wake-ups
// aligned with display refreshes, and tracks the per-frame time budget.
package frame

import (
	"log/slog"
	"time"

	"framesched/internal/host"
)

// FlushFunc drains scheduled work. didTimeout is true when the earliest
// deadline passed before any frame time could be offered.
type FlushFunc func(didTimeout bool) error

// Pump delivers at most one pending flush to the host at a time.
type Pump interface {
	// Request arms a wake-up that calls flush, replacing any pending flush.
	// absoluteTimeout is the earliest deadline of the queued work.
	Request(flush FlushFunc, absoluteTimeout time.Duration)
	// Cancel drops the pending flush. A wake-up already in flight becomes a
	// no-op.
	Cancel()
	// ShouldYield reports whether the current frame's budget is spent.
	ShouldYield() bool
	// FrameTime is the current per-frame estimate, zero when the pump is not
	// frame-aligned.
	FrameTime() time.Duration
}

// Config holds the pump's tuning constants.
type Config struct {
	InitialFrameTime      time.Duration
	MinFrameTime          time.Duration
	AnimationFrameTimeout time.Duration
}

// DefaultConfig assumes 30Hz, refuses to believe anything faster than 120Hz,
// and falls back to a timer when a refresh does not arrive within 100ms.
func DefaultConfig() Config {
	return Config{
		InitialFrameTime:      33 * time.Millisecond,
		MinFrameTime:          8 * time.Millisecond,
		AnimationFrameTimeout: 100 * time.Millisecond,
	}
}

// New picks the pump for h once: frame-aligned when h has a FrameSource, the
// timer pump otherwise.
func New(h host.Host, cfg Config, logger *slog.Logger) Pump {
	logger = logger.With("component", "pump")
	frames, ok := host.Frames(h)
	if !ok {
		logger.Warn("host has no display refresh source, falling back to timer pump")
		return NewTimerPump(h)
	}
	return NewFramePump(h, frames, cfg)
}

// FramePump runs the flush in a posted message after each display refresh, so
// layout and paint are already counted against the frame when work starts.
type FramePump struct {
	host   host.Host
	frames host.FrameSource
	cfg    Config
	budget *Budget

	callback   FlushFunc
	timeout    time.Duration
	hasTimeout bool

	messageScheduled bool
	messageGen       uint64
	frameScheduled   bool
	flushing         bool
}

// NewFramePump returns a frame-aligned pump.
func NewFramePump(h host.Host, frames host.FrameSource, cfg Config) *FramePump {
	return &FramePump{
		host:   h,
		frames: frames,
		cfg:    cfg,
		budget: NewBudget(cfg.InitialFrameTime, cfg.MinFrameTime),
	}
}

func (p *FramePump) Request(flush FlushFunc, absoluteTimeout time.Duration) {
	p.callback = flush
	p.timeout = absoluteTimeout
	p.hasTimeout = true
	if p.flushing || absoluteTimeout <= p.host.Now() {
		// Don't wait for the next frame.
		p.postMessage()
		return
	}
	if !p.frameScheduled {
		p.frameScheduled = true
		p.requestFrameWithTimeout()
	}
}

func (p *FramePump) Cancel() {
	p.callback = nil
	p.hasTimeout = false
	p.messageScheduled = false
	p.messageGen++
}

func (p *FramePump) ShouldYield() bool {
	return !p.budget.Remaining(p.host.Now())
}

// HasTimeRemaining reports whether the current frame still has budget.
func (p *FramePump) HasTimeRemaining() bool {
	return p.budget.Remaining(p.host.Now())
}

func (p *FramePump) FrameTime() time.Duration { return p.budget.FrameTime() }

// Budget exposes the frame-budget tracker.
func (p *FramePump) Budget() *Budget { return p.budget }

func (p *FramePump) postMessage() {
	if p.messageScheduled {
		return
	}
	p.messageScheduled = true
	gen := p.messageGen
	p.host.Post(func() error { return p.onMessage(gen) })
}

func (p *FramePump) onMessage(gen uint64) error {
	if gen != p.messageGen {
		return nil
	}
	p.messageScheduled = false

	callback, timeout, hasTimeout := p.callback, p.timeout, p.hasTimeout
	p.callback, p.hasTimeout = nil, false

	now := p.host.Now()
	didTimeout := false
	if p.budget.Deadline()-now <= 0 {
		if hasTimeout && timeout <= now {
			// Out of frame time, but the work is overdue: run it anyway.
			didTimeout = true
		} else {
			if !p.frameScheduled {
				p.frameScheduled = true
				p.requestFrameWithTimeout()
			}
			p.callback, p.timeout, p.hasTimeout = callback, timeout, hasTimeout
			return nil
		}
	}

	if callback == nil {
		return nil
	}
	p.flushing = true
	defer func() { p.flushing = false }()
	return callback(didTimeout)
}

func (p *FramePump) onFrame(frameTime time.Duration) {
	if p.callback == nil {
		p.frameScheduled = false
		return
	}
	// Ask for the next frame now, so a flush still busy at the end of this one
	// continues in the earliest possible frame.
	p.requestFrameWithTimeout()

	p.budget.Observe(frameTime)
	p.postMessage()
}

// frameRace is shared by the refresh callback and its fallback timer; whichever
// fires first settles it and cancels the other.
type frameRace struct {
	settled bool
	frame   host.FrameID
	timer   host.TimerID
}

func (p *FramePump) requestFrameWithTimeout() {
	race := &frameRace{}
	race.frame = p.frames.RequestFrame(func(frameTime time.Duration) {
		if race.settled {
			return
		}
		race.settled = true
		p.host.CancelAfter(race.timer)
		p.onFrame(frameTime)
	})
	race.timer = p.host.After(p.cfg.AnimationFrameTimeout, func() error {
		if race.settled {
			return nil
		}
		race.settled = true
		p.frames.CancelFrame(race.frame)
		p.onFrame(p.host.Now())
		return nil
	})
}
