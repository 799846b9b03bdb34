// internal/sched/scheduler.go

package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"framesched/internal/frame"
	"framesched/internal/host"
	"framesched/internal/priority"
)

// ErrUnknownPriority is the panic value (wrapped) for a ScheduleTask call with
// a level outside Immediate..Idle.
var ErrUnknownPriority = errors.New("sched: unknown priority level")

// unset marks "no current deadline" and "no current event".
const unset = time.Duration(math.MinInt64)

// TaskError is returned from a flush when a task's callback fails.
type TaskError struct {
	TaskID   TaskID
	Priority priority.Level
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s): %v", e.TaskID, e.Priority, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Scheduler runs prioritized callbacks in deadline order, a frame's worth at a
// time. It is not safe for concurrent use: every method must be called on the
// host's loop goroutine.
type Scheduler struct {
	clock     host.Clock
	pump      frame.Pump
	queue     *queue
	timeouts  priority.Timeouts
	logger    *slog.Logger
	observers []Observer
	closers   []io.Closer
	nextID    TaskID

	// Scheduler context
	currentPriority       priority.Level
	currentExpiration     time.Duration
	currentEventStart     time.Duration
	didTimeout            bool
	performingWork        bool
	hostCallbackScheduled bool
	paused                bool

	stats Stats
}

// Stats counts scheduler activity since construction.
type Stats struct {
	Scheduled uint64        `json:"scheduled"`
	Completed uint64        `json:"completed"`
	Yielded   uint64        `json:"yielded"`
	Cancelled uint64        `json:"cancelled"`
	Failed    uint64        `json:"failed"`
	Flushes   uint64        `json:"flushes"`
	Pending   int           `json:"pending"`
	Paused    bool          `json:"paused"`
	FrameTime time.Duration `json:"frame_time_ns"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver registers fn for every status event.
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, fn) }
}

// WithPump replaces the pump New would pick for the host.
func WithPump(p frame.Pump) Option {
	return func(s *Scheduler) { s.pump = p }
}

// New creates a Scheduler driven by h.
func New(h host.Host, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:             h,
		queue:             newQueue(),
		timeouts:          cfg.Timeouts(),
		logger:            slog.Default(),
		currentPriority:   priority.Normal,
		currentExpiration: unset,
		currentEventStart: unset,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pump == nil {
		s.pump = frame.New(h, cfg.Pump(), s.logger)
	}
	s.logger = s.logger.With("component", "sched")
	return s
}

// ScheduleTask queues cb at level and returns its handle. The deadline is
// measured from the start of the current priority-scoped call, or from now
// outside of one. It panics if level is not a known priority or cb is nil.
func (s *Scheduler) ScheduleTask(level priority.Level, cb Callback, opts ...TaskOption) *Task {
	if !level.Valid() {
		panic(fmt.Errorf("%w: %v", ErrUnknownPriority, level))
	}
	if cb == nil {
		panic("sched: nil callback")
	}
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := s.currentEventStart
	if start == unset {
		start = s.clock.Now()
	}
	expiration := s.timeouts.Expiration(start, level)
	if o.hasTimeout {
		expiration = start + o.timeout
	}

	s.nextID++
	t := &Task{
		ID:             s.nextID,
		Priority:       level,
		ExpirationTime: expiration,
		callback:       cb,
	}
	becameHead := s.queue.insert(t)
	s.stats.Scheduled++
	s.emit(StatusEnqueue, t, nil)
	if becameHead {
		s.scheduleHostCallbackIfNeeded()
	}
	return t
}

// CancelTask removes t from the queue. It reports false if t already ran or
// was already cancelled.
func (s *Scheduler) CancelTask(t *Task) bool {
	if t == nil || !s.queue.cancel(t) {
		return false
	}
	s.stats.Cancelled++
	s.emit(StatusCancel, t, nil)
	return true
}

// ShouldYield reports whether a running callback should return a continuation:
// either a more urgent task is waiting, or the frame budget is spent. Callbacks
// invoked as timed out are never asked to yield.
func (s *Scheduler) ShouldYield() bool {
	if s.didTimeout {
		return false
	}
	if head := s.queue.peek(); head != nil && head.ExpirationTime < s.currentExpiration {
		return true
	}
	return s.pump.ShouldYield()
}

// CurrentPriority is the level of the running callback or scoped call.
func (s *Scheduler) CurrentPriority() priority.Level { return s.currentPriority }

// Now reads the host clock.
func (s *Scheduler) Now() time.Duration { return s.clock.Now() }

// Pause stops flushing until Resume. Queued tasks stay queued.
func (s *Scheduler) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	s.emit(StatusPause, nil, nil)
}

// Resume undoes Pause and re-arms the pump if work is waiting.
func (s *Scheduler) Resume() {
	if !s.paused {
		return
	}
	s.paused = false
	s.emit(StatusResume, nil, nil)
	if s.queue.len() > 0 {
		s.scheduleHostCallbackIfNeeded()
	}
}

// PeekNextTask returns the task that will run next, or nil.
func (s *Scheduler) PeekNextTask() *Task { return s.queue.peek() }

// PendingTasks returns the queued tasks in run order.
func (s *Scheduler) PendingTasks() []*Task { return s.queue.tasks() }

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Pending = s.queue.len()
	st.Paused = s.paused
	st.FrameTime = s.pump.FrameTime()
	return st
}

// Close releases the trace writers opened by EnableCSVLogging.
func (s *Scheduler) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Scheduler) scheduleHostCallbackIfNeeded() {
	if s.performingWork {
		// flushWork re-arms on exit.
		return
	}
	head := s.queue.peek()
	if head == nil {
		return
	}
	if s.hostCallbackScheduled {
		s.pump.Cancel()
	} else {
		s.hostCallbackScheduled = true
	}
	s.pump.Request(s.flushWork, head.ExpirationTime)
}

// flushWork is the pump's callback.
func (s *Scheduler) flushWork(didTimeout bool) error {
	if s.paused {
		return nil
	}
	s.hostCallbackScheduled = false
	s.performingWork = true
	previousDidTimeout := s.didTimeout
	s.didTimeout = didTimeout
	s.stats.Flushes++
	defer func() {
		s.performingWork = false
		s.didTimeout = previousDidTimeout
		s.scheduleHostCallbackIfNeeded()
		if s.queue.len() == 0 {
			s.emit(StatusIdle, nil, nil)
		}
	}()

	if didTimeout {
		// Flush everything that has expired, without yielding.
		for s.queue.len() > 0 && !s.paused {
			now := s.clock.Now()
			if s.queue.peek().ExpirationTime > now {
				break
			}
			for {
				if err := s.flushFirst(); err != nil {
					return err
				}
				head := s.queue.peek()
				if head == nil || head.ExpirationTime > now || s.paused {
					break
				}
			}
		}
		return nil
	}

	// Keep flushing until the frame runs out of time.
	for s.queue.len() > 0 && !s.paused {
		if err := s.flushFirst(); err != nil {
			return err
		}
		if s.pump.ShouldYield() {
			break
		}
	}
	return nil
}

func (s *Scheduler) flushFirst() error {
	t := s.queue.removeHead()
	s.emit(StatusDispatch, t, nil)

	res, err := s.invoke(t)
	if err != nil {
		s.stats.Failed++
		s.emit(StatusFail, t, err)
		return &TaskError{TaskID: t.ID, Priority: t.Priority, Err: err}
	}

	next, ok := res.Continuation()
	if !ok {
		s.stats.Completed++
		s.emit(StatusFinish, t, nil)
		return nil
	}

	s.nextID++
	cont := &Task{
		ID:             s.nextID,
		Priority:       t.Priority,
		ExpirationTime: t.ExpirationTime,
		callback:       next,
	}
	t.next = cont
	s.stats.Yielded++
	s.emit(StatusYield, t, nil)
	if s.queue.insertContinuation(cont) {
		s.scheduleHostCallbackIfNeeded()
	}
	return nil
}

// invoke runs t's callback with t's priority and deadline as the current ones,
// restoring the previous pair even if the callback panics.
func (s *Scheduler) invoke(t *Task) (Result, error) {
	previousPriority, previousExpiration := s.currentPriority, s.currentExpiration
	s.currentPriority, s.currentExpiration = t.Priority, t.ExpirationTime
	defer func() {
		s.currentPriority, s.currentExpiration = previousPriority, previousExpiration
	}()
	return t.callback(s.didTimeout || t.Priority == priority.Immediate)
}

func (s *Scheduler) emit(kind StatusKind, t *Task, err error) {
	ev := StatusEvent{
		Time:       s.clock.Now(),
		Kind:       kind,
		DidTimeout: s.didTimeout,
		Err:        err,
	}
	if t != nil {
		ev.TaskID = t.ID
		ev.Priority = t.Priority
		ev.Expiration = t.ExpirationTime
	}

	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []any{"event", kind.String(), "at", ev.Time}
		if t != nil {
			attrs = append(attrs, "task", t.ID, "priority", t.Priority.String(), "expiration", t.ExpirationTime)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		s.logger.Debug("scheduler event", attrs...)
	}

	for _, fn := range s.observers {
		fn(ev)
	}
}
