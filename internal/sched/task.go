package sched

import (
	"time"

	"framesched/internal/priority"
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// Callback is one slice of work. didTimeout is true when the task is already
// overdue (or Immediate) and should run to completion instead of yielding.
// Returning Continue(next) asks to be resumed later at the same deadline.
type Callback func(didTimeout bool) (Result, error)

// Result tells the flush loop whether a callback finished.
type Result struct {
	next Callback
}

// Done reports that the work is complete.
func Done() Result { return Result{} }

// Continue reports that the work yielded and next resumes it.
func Continue(next Callback) Result { return Result{next: next} }

// Continuation returns the resume callback, if the work yielded.
func (r Result) Continuation() (Callback, bool) {
	return r.next, r.next != nil
}

// Task represents one schedulable task unit.
type Task struct {
	ID             TaskID
	Priority       priority.Level
	ExpirationTime time.Duration // absolute, on the host clock

	callback Callback
	key      nodeKey // position in the queue; valid while queued
	queued   bool
	next     *Task // continuation created when this task yielded
}

// Scheduled reports whether t is still waiting in the queue.
func (t *Task) Scheduled() bool { return t.queued }

// Continuation returns the task that resumes t's work, if t yielded.
func (t *Task) Continuation() *Task { return t.next }

// TaskOption customizes a single ScheduleTask call.
type TaskOption func(*taskOptions)

type taskOptions struct {
	timeout    time.Duration
	hasTimeout bool
}

// WithTimeout overrides the priority's timeout. Zero or negative timeouts make
// the task due immediately.
func WithTimeout(d time.Duration) TaskOption {
	return func(o *taskOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}
