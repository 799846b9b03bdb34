package host

import (
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// Virtual is a deterministic host for tests. Time only moves when the test
// says so: Spend models time consumed by synchronous work, Advance fires due
// timers, and Frame delivers one display refresh.
//
// Virtual is not safe for concurrent use.
type Virtual struct {
	now time.Duration

	posted []func() error

	timers    *binaryheap.Heap
	live      map[TimerID]*virtualTimer
	nextTimer TimerID

	frames     map[FrameID]func(time.Duration)
	frameOrder []FrameID
	nextFrame  FrameID
	frameCount int
}

type virtualTimer struct {
	id TimerID
	at time.Duration
	fn func() error
}

// NewVirtual returns a Virtual host whose clock reads start.
func NewVirtual(start time.Duration) *Virtual {
	return &Virtual{
		now: start,
		timers: binaryheap.NewWith(func(a, b any) int {
			ta, tb := a.(*virtualTimer), b.(*virtualTimer)
			switch {
			case ta.at < tb.at:
				return -1
			case ta.at > tb.at:
				return 1
			case ta.id < tb.id:
				return -1
			case ta.id > tb.id:
				return 1
			default:
				return 0
			}
		}),
		live:   make(map[TimerID]*virtualTimer),
		frames: make(map[FrameID]func(time.Duration)),
	}
}

func (v *Virtual) Now() time.Duration { return v.now }

func (v *Virtual) Post(fn func() error) {
	v.posted = append(v.posted, fn)
}

func (v *Virtual) After(d time.Duration, fn func() error) TimerID {
	if d < 0 {
		d = 0
	}
	v.nextTimer++
	t := &virtualTimer{id: v.nextTimer, at: v.now + d, fn: fn}
	v.live[t.id] = t
	v.timers.Push(t)
	return t.id
}

func (v *Virtual) CancelAfter(id TimerID) {
	delete(v.live, id)
}

func (v *Virtual) RequestFrame(fn func(time.Duration)) FrameID {
	v.nextFrame++
	v.frames[v.nextFrame] = fn
	v.frameOrder = append(v.frameOrder, v.nextFrame)
	return v.nextFrame
}

func (v *Virtual) CancelFrame(id FrameID) {
	delete(v.frames, id)
}

// Spend moves the clock forward without running anything.
func (v *Virtual) Spend(d time.Duration) {
	if d > 0 {
		v.now += d
	}
}

// PendingPosts is the number of posted callbacks not yet run.
func (v *Virtual) PendingPosts() int { return len(v.posted) }

// PendingTimers is the number of uncancelled timers not yet fired.
func (v *Virtual) PendingTimers() int { return len(v.live) }

// PendingFrames is the number of frame callbacks waiting for the next refresh.
func (v *Virtual) PendingFrames() int { return len(v.frames) }

// FrameCount is the number of refreshes delivered so far.
func (v *Virtual) FrameCount() int { return v.frameCount }

// RunPosted runs posted callbacks in order, including ones they post, until
// none remain. It stops at the first error and returns it.
func (v *Virtual) RunPosted() error {
	for len(v.posted) > 0 {
		fn := v.posted[0]
		v.posted[0] = nil
		v.posted = v.posted[1:]
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and running posted callbacks before each timer and at the end.
func (v *Virtual) Advance(d time.Duration) error {
	target := v.now + d
	for {
		if err := v.RunPosted(); err != nil {
			return err
		}
		t := v.nextDue(target)
		if t == nil {
			break
		}
		if t.at > v.now {
			v.now = t.at
		}
		if err := t.fn(); err != nil {
			return err
		}
	}
	if target > v.now {
		v.now = target
	}
	return v.RunPosted()
}

func (v *Virtual) nextDue(target time.Duration) *virtualTimer {
	for {
		top, ok := v.timers.Peek()
		if !ok {
			return nil
		}
		t := top.(*virtualTimer)
		if _, live := v.live[t.id]; !live {
			v.timers.Pop()
			continue
		}
		if t.at > target {
			return nil
		}
		v.timers.Pop()
		delete(v.live, t.id)
		return t
	}
}

// Frame advances the clock by interval, then delivers a refresh to every frame
// callback registered before it, then runs posted callbacks.
func (v *Virtual) Frame(interval time.Duration) error {
	if err := v.Advance(interval); err != nil {
		return err
	}
	v.frameCount++
	order := v.frameOrder
	v.frameOrder = nil
	for _, id := range order {
		fn, ok := v.frames[id]
		if !ok {
			continue
		}
		delete(v.frames, id)
		fn(v.now)
	}
	return v.RunPosted()
}

// RunFrames delivers n refreshes interval apart, stopping at the first error.
func (v *Virtual) RunFrames(n int, interval time.Duration) error {
	for i := 0; i < n; i++ {
		if err := v.Frame(interval); err != nil {
			return err
		}
	}
	return nil
}
