package sched

import "framesched/internal/priority"

// RunAtPriority runs fn with level as the current priority. Tasks scheduled by
// fn measure their deadlines from the moment fn started. Unknown levels run at
// Normal.
func (s *Scheduler) RunAtPriority(level priority.Level, fn func() error) error {
	if !level.Valid() {
		level = priority.Normal
	}
	return s.runScoped(level, fn)
}

// RunAtPriorityValue is RunAtPriority for functions that produce a value.
func RunAtPriorityValue[T any](s *Scheduler, level priority.Level, fn func() (T, error)) (T, error) {
	var out T
	err := s.RunAtPriority(level, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// Next runs fn at Normal priority, or at the current level if that is already
// less urgent than Normal. Use it to push follow-up work out of an urgent
// context.
func (s *Scheduler) Next(fn func() error) error {
	level := s.currentPriority
	switch level {
	case priority.Immediate, priority.UserBlocking, priority.Normal:
		level = priority.Normal
	}
	return s.runScoped(level, fn)
}

// WrapCallback captures the current priority; the returned function runs fn at
// that priority whenever it is called.
func (s *Scheduler) WrapCallback(fn func() error) func() error {
	level := s.currentPriority
	return func() error {
		return s.runScoped(level, fn)
	}
}

// WrapAtPriority returns a function that runs fn at level.
func (s *Scheduler) WrapAtPriority(level priority.Level, fn func() error) func() error {
	return func() error {
		return s.RunAtPriority(level, fn)
	}
}

func (s *Scheduler) runScoped(level priority.Level, fn func() error) error {
	previousPriority, previousEventStart := s.currentPriority, s.currentEventStart
	s.currentPriority = level
	s.currentEventStart = s.clock.Now()
	defer func() {
		s.currentPriority, s.currentEventStart = previousPriority, previousEventStart
	}()

	failed := true
	defer func() {
		// fn may have queued work before failing; make sure it still runs.
		if failed {
			s.scheduleHostCallbackIfNeeded()
		}
	}()
	err := fn()
	failed = err != nil
	return err
}
