package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PanicError wraps a value recovered from a panicking loop callback.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("host: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Loop is a realtime host: a single goroutine (the one calling Run) that runs
// posted callbacks and timers in arrival order.
//
// Post and Call are safe from any goroutine. After and CancelAfter must be
// called from callbacks running on the loop.
type Loop struct {
	origin time.Time
	logger *slog.Logger

	mu    sync.Mutex
	queue []func() error
	wake  chan struct{}
	done  chan struct{} // closed when Run returns

	timers    map[TimerID]*time.Timer
	nextTimer TimerID

	onError func(error)
	running atomic.Bool
	closed  atomic.Bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithErrorHandler sets the function that receives errors returned (or panics
// raised) by loop callbacks. The default logs them at error level.
func WithErrorHandler(fn func(error)) LoopOption {
	return func(l *Loop) {
		if fn != nil {
			l.onError = fn
		}
	}
}

// NewLoop returns a Loop whose clock starts at zero now.
func NewLoop(logger *slog.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		origin: time.Now(),
		logger: logger.With("component", "host"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		timers: make(map[TimerID]*time.Timer),
	}
	l.onError = func(err error) {
		l.logger.Error("host callback failed", "error", err)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Now() time.Duration { return time.Since(l.origin) }

// Post queues fn. Callbacks posted after the loop has stopped are dropped.
func (l *Loop) Post(fn func() error) {
	if l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) After(d time.Duration, fn func() error) TimerID {
	l.nextTimer++
	id := l.nextTimer
	l.timers[id] = time.AfterFunc(d, func() {
		l.Post(func() error {
			if _, ok := l.timers[id]; !ok {
				return nil
			}
			delete(l.timers, id)
			return fn()
		})
	})
	return id
}

func (l *Loop) CancelAfter(id TimerID) {
	if t, ok := l.timers[id]; ok {
		t.Stop()
		delete(l.timers, id)
	}
}

// Call runs fn on the loop and waits for its result. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	if l.closed.Load() {
		return ErrClosed
	}
	result := make(chan error, 1)
	l.Post(func() error {
		result <- l.safeExecute(fn)
		return nil
	})
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes callbacks until ctx is done. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		l.closed.Store(true)
		close(l.done)
		for id, t := range l.timers {
			t.Stop()
			delete(l.timers, id)
		}
	}()

	for {
		for ctx.Err() == nil {
			fn := l.pop()
			if fn == nil {
				break
			}
			if err := l.safeExecute(fn); err != nil {
				l.onError(err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) pop() func() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn()
}
