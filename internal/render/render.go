// Package render drives units of render work for a root through the
// scheduler, one scheduled callback per root, with updates coalesced by
// expiration bucket.
package render

import (
	"fmt"
	"log/slog"

	"framesched/internal/expiration"
	"framesched/internal/sched"
)

// Root is a render target. It owns at most one scheduled callback at a time.
type Root struct {
	Name string

	pending  int
	rendered int
	commits  int

	callbackTask       *sched.Task
	callbackExpiration expiration.Time

	// rendering is set while the root's own callback runs; stale marks an
	// update during that time whose expiration is sooner than the running
	// callback's.
	rendering bool
	stale     bool
}

// NewRoot returns an idle root.
func NewRoot(name string) *Root {
	return &Root{Name: name, callbackExpiration: expiration.NoWork}
}

// Pending is the number of units not yet rendered.
func (r *Root) Pending() int { return r.pending }

// Rendered is the number of units rendered so far.
func (r *Root) Rendered() int { return r.rendered }

// Commits counts render passes that drained all pending work.
func (r *Root) Commits() int { return r.commits }

// CallbackExpiration is the expiration of the scheduled callback, NoWork when
// none is scheduled.
func (r *Root) CallbackExpiration() expiration.Time { return r.callbackExpiration }

// CallbackTask returns the queued task currently carrying the root's work,
// following continuations, or nil.
func (r *Root) CallbackTask() *sched.Task {
	t := r.callbackTask
	for t != nil && !t.Scheduled() {
		t = t.Continuation()
	}
	return t
}

func (r *Root) clearCallback() {
	r.callbackTask = nil
	r.callbackExpiration = expiration.NoWork
	r.stale = false
}

// WorkFunc renders one unit of root's pending work.
type WorkFunc func(root *Root) error

// Renderer schedules render work.
type Renderer struct {
	sched  *sched.Scheduler
	model  *expiration.Model
	work   WorkFunc
	logger *slog.Logger
}

// NewRenderer returns a Renderer that performs work through s.
func NewRenderer(s *sched.Scheduler, model *expiration.Model, work WorkFunc, logger *slog.Logger) *Renderer {
	return &Renderer{
		sched:  s,
		model:  model,
		work:   work,
		logger: logger.With("component", "render"),
	}
}

// ScheduleUpdate adds units of work to root and makes sure a callback will
// render them by the update's expiration. Interactive updates get the short
// window. It returns the update's expiration.
func (r *Renderer) ScheduleUpdate(root *Root, units int, interactive bool) expiration.Time {
	current := r.model.FromDuration(r.sched.Now())
	exp := r.model.ComputeAsync(current)
	if interactive {
		exp = r.model.ComputeInteractive(current)
	}
	root.pending += units
	r.scheduleCallback(root, current, exp)
	return exp
}

func (r *Renderer) scheduleCallback(root *Root, current, exp expiration.Time) {
	if root.callbackExpiration != expiration.NoWork {
		// Larger is sooner: an existing callback at least as urgent covers this
		// update too.
		if exp <= root.callbackExpiration {
			return
		}
		if root.rendering {
			// The running pass drains the new units; it reschedules at exp if
			// it has to yield first.
			root.callbackExpiration = exp
			root.stale = true
			return
		}
		if t := root.CallbackTask(); t != nil {
			r.sched.CancelTask(t)
		}
	}
	r.schedule(root, current, exp)
}

func (r *Renderer) schedule(root *Root, current, exp expiration.Time) {
	root.stale = false
	level := r.model.InferPriority(current, exp)
	timeout := r.model.Until(current, exp)
	root.callbackExpiration = exp
	root.callbackTask = r.sched.ScheduleTask(level, r.perform(root), sched.WithTimeout(timeout))
	r.logger.Debug("scheduled root callback",
		"root", root.Name,
		"priority", level.String(),
		"timeout", timeout,
		"pending", root.pending,
	)
}

func (r *Renderer) perform(root *Root) sched.Callback {
	var step sched.Callback
	step = func(didTimeout bool) (sched.Result, error) {
		root.rendering = true
		defer func() { root.rendering = false }()

		for root.pending > 0 {
			if err := r.work(root); err != nil {
				root.clearCallback()
				return sched.Done(), fmt.Errorf("render %s: %w", root.Name, err)
			}
			root.pending--
			root.rendered++
			if root.pending > 0 && !didTimeout && r.sched.ShouldYield() {
				if root.stale {
					r.schedule(root, r.model.FromDuration(r.sched.Now()), root.callbackExpiration)
					return sched.Done(), nil
				}
				return sched.Continue(step), nil
			}
		}
		root.commits++
		root.clearCallback()
		return sched.Done(), nil
	}
	return step
}
