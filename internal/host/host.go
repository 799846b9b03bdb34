// Package host defines the narrow set of timing primitives the scheduler
// consumes from its environment, plus two environments that provide them: a
// realtime single-goroutine Loop (optionally with a Display refresh source) and
// a deterministic Virtual host for tests.
//
// All callbacks a host invokes run on its one loop goroutine, one at a time.
package host

import (
	"errors"
	"time"
)

// ErrClosed is returned by Loop.Call once the loop has stopped.
var ErrClosed = errors.New("host: loop closed")

// ErrRunning is returned by Run on a loop that has already been started.
var ErrRunning = errors.New("host: loop already running")

// TimerID identifies a pending After callback.
type TimerID uint64

// FrameID identifies a pending RequestFrame callback.
type FrameID uint64

// Clock returns a monotonically non-decreasing reading, measured from an
// origin fixed by the host.
type Clock interface {
	Now() time.Duration
}

// Poster runs fn as soon as possible, but never synchronously within the
// caller's stack.
type Poster interface {
	Post(fn func() error)
}

// Timers runs a callback after a delay.
type Timers interface {
	After(d time.Duration, fn func() error) TimerID
	CancelAfter(id TimerID)
}

// FrameSource runs a callback near the start of the next display refresh,
// passing the frame's timestamp. It is an optional capability.
type FrameSource interface {
	RequestFrame(fn func(frameTime time.Duration)) FrameID
	CancelFrame(id FrameID)
}

// Host is the minimum an environment must provide.
type Host interface {
	Clock
	Poster
	Timers
}

// Frames returns h's refresh source, if it has one.
func Frames(h Host) (FrameSource, bool) {
	fs, ok := h.(FrameSource)
	return fs, ok
}

type withoutFrames struct {
	Host
}

// WithoutFrames hides any FrameSource capability of h, for environments that
// must be treated as non-visual.
func WithoutFrames(h Host) Host {
	return withoutFrames{Host: h}
}
