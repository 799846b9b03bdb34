// internal/sched/schedulerEvent.go

package sched

import (
	"time"

	"framesched/internal/priority"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusEnqueue StatusKind = iota
	StatusDispatch
	StatusYield
	StatusFinish
	StatusFail
	StatusCancel
	StatusIdle
	StatusPause
	StatusResume
)

// StatusEvent is emitted on every queue and flush transition
type StatusEvent struct {
	Time       time.Duration
	Kind       StatusKind
	TaskID     TaskID
	Priority   priority.Level
	Expiration time.Duration
	DidTimeout bool
	Err        error
}

// Observer receives status events on the scheduler's goroutine.
type Observer func(StatusEvent)

func (sk StatusKind) String() string {
	switch sk {
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusYield:
		return "Yield"
	case StatusFinish:
		return "Finish"
	case StatusFail:
		return "Fail"
	case StatusCancel:
		return "Cancel"
	case StatusIdle:
		return "Idle"
	case StatusPause:
		return "Pause"
	case StatusResume:
		return "Resume"
	default:
		return "Unknown"
	}
}
