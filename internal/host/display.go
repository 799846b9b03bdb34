package host

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// refreshClock emits refresh ticks and counts them atomically. A tick that
// arrives while the previous one is still undelivered is dropped, the way a
// busy display skips a frame.
type refreshClock struct {
	count    atomic.Int64
	pending  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

func newRefreshClock() *refreshClock {
	return &refreshClock{stop: make(chan struct{})}
}

// Start begins calling deliver once per interval on a ticker goroutine.
func (c *refreshClock) Start(interval time.Duration, deliver func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				if c.pending.CompareAndSwap(false, true) {
					deliver()
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *refreshClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Count returns the number of ticks emitted, delivered or not.
func (c *refreshClock) Count() int64 {
	return c.count.Load()
}

// Display is a Loop with a display-refresh FrameSource driven by a fixed-rate
// ticker.
type Display struct {
	*Loop

	interval time.Duration
	clock    *refreshClock
	started  atomic.Bool

	frames     map[FrameID]func(time.Duration)
	frameOrder []FrameID
	nextFrame  FrameID
}

// NewDisplay attaches a refresh source running at hz to loop. hz must be
// positive.
func NewDisplay(loop *Loop, hz int) *Display {
	if hz <= 0 {
		panic("host: display refresh rate must be positive")
	}
	return &Display{
		Loop:     loop,
		interval: time.Second / time.Duration(hz),
		clock:    newRefreshClock(),
		frames:   make(map[FrameID]func(time.Duration)),
	}
}

func (d *Display) RequestFrame(fn func(time.Duration)) FrameID {
	d.nextFrame++
	d.frames[d.nextFrame] = fn
	d.frameOrder = append(d.frameOrder, d.nextFrame)
	return d.nextFrame
}

func (d *Display) CancelFrame(id FrameID) {
	delete(d.frames, id)
}

// Refreshes is the number of refresh ticks emitted since Run started.
func (d *Display) Refreshes() int64 { return d.clock.Count() }

// Run starts the refresh ticker and runs the loop until ctx is done. A Display
// runs once; later calls return ErrRunning and leave the ticker alone.
func (d *Display) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	d.clock.Start(d.interval, func() { d.Post(d.refresh) })
	defer d.clock.Stop()
	return d.Loop.Run(ctx)
}

func (d *Display) refresh() error {
	d.clock.pending.Store(false)
	now := d.Now()
	order := d.frameOrder
	d.frameOrder = nil
	for _, id := range order {
		fn, ok := d.frames[id]
		if !ok {
			continue
		}
		delete(d.frames, id)
		fn(now)
	}
	return nil
}
