package priority

import (
	"fmt"
	"strings"
	"time"
)

// Level is the urgency class of a scheduled task. Lower values are more urgent.
type Level int

const (
	Immediate Level = iota + 1
	UserBlocking
	Normal
	Low
	Idle
)

// Levels lists every valid level, most urgent first.
var Levels = []Level{Immediate, UserBlocking, Normal, Low, Idle}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l >= Immediate && l <= Idle
}

func (l Level) String() string {
	switch l {
	case Immediate:
		return "Immediate"
	case UserBlocking:
		return "UserBlocking"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	case Idle:
		return "Idle"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Parse maps a case-insensitive level name ("user-blocking", "userblocking" and
// "user_blocking" are all accepted) to its Level.
func Parse(s string) (Level, error) {
	name := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s)))
	for _, l := range Levels {
		if strings.ToLower(l.String()) == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Timeouts holds the relative timeout of each level: how long after it was
// requested a task may wait before it is considered overdue.
type Timeouts struct {
	Immediate    time.Duration
	UserBlocking time.Duration
	Normal       time.Duration
	Low          time.Duration
	Idle         time.Duration
}

// maxSigned31BitInt milliseconds is the idle timeout: long enough to never
// expire in practice while staying representable on 32-bit hosts.
const maxSigned31BitInt = 1<<30 - 1

// DefaultTimeouts returns the latency-calibrated defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Immediate:    -1 * time.Millisecond,
		UserBlocking: 250 * time.Millisecond,
		Normal:       5000 * time.Millisecond,
		Low:          10000 * time.Millisecond,
		Idle:         maxSigned31BitInt * time.Millisecond,
	}
}

// For returns the relative timeout for l. Unknown levels get the Normal timeout.
func (t Timeouts) For(l Level) time.Duration {
	switch l {
	case Immediate:
		return t.Immediate
	case UserBlocking:
		return t.UserBlocking
	case Low:
		return t.Low
	case Idle:
		return t.Idle
	default:
		return t.Normal
	}
}

// Expiration is the absolute deadline of a task requested at start with level l.
func (t Timeouts) Expiration(start time.Duration, l Level) time.Duration {
	return start + t.For(l)
}
