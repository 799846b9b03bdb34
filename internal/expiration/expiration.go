// Package expiration implements the bucketed expiration-time model used by a
// renderer to coalesce updates.
//
// Expiration times run backwards: a larger Time is a sooner deadline. This
// reserves the smallest values for the NoWork and Never sentinels and the
// largest for Sync, leaving the range in between for real deadlines that count
// down from Sync as the clock advances.
package expiration

import (
	"fmt"
	"time"

	"framesched/internal/priority"
)

// Time is a point on the inverted expiration scale. One unit is Config.Unit.
type Time int64

const (
	NoWork Time = 0
	Never  Time = 1
	Sync   Time = 1<<30 - 1

	magicOffset = Sync - 1
)

// Config holds the tuning constants of the model.
type Config struct {
	Unit time.Duration

	InteractiveExpiration    time.Duration
	InteractiveDevExpiration time.Duration
	InteractiveBucket        time.Duration
	AsyncExpiration          time.Duration
	AsyncBucket              time.Duration

	// Development selects InteractiveDevExpiration, which makes scheduling
	// problems easier to notice by letting interactive work wait longer.
	Development bool

	// Thresholds supplies the UserBlocking and Normal windows InferPriority
	// classifies against.
	Thresholds priority.Timeouts
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Unit:                     10 * time.Millisecond,
		InteractiveExpiration:    150 * time.Millisecond,
		InteractiveDevExpiration: 500 * time.Millisecond,
		InteractiveBucket:        100 * time.Millisecond,
		AsyncExpiration:          5000 * time.Millisecond,
		AsyncBucket:              250 * time.Millisecond,
		Thresholds:               priority.DefaultTimeouts(),
	}
}

// Model converts between clock time and expiration time.
type Model struct {
	cfg Config
}

// New returns a Model. It panics if cfg.Unit is not positive.
func New(cfg Config) *Model {
	if cfg.Unit <= 0 {
		panic(fmt.Sprintf("expiration: unit must be positive, got %v", cfg.Unit))
	}
	return &Model{cfg: cfg}
}

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// FromDuration converts a clock reading to an expiration time. Readings too
// far in the future to be represented collapse to Never.
func (m *Model) FromDuration(d time.Duration) Time {
	t := magicOffset - Time(d/m.cfg.Unit)
	if t <= Never {
		return Never
	}
	return t
}

// ToDuration converts an expiration time back to a clock reading, truncated to
// the model's unit.
func (m *Model) ToDuration(t Time) time.Duration {
	return time.Duration(magicOffset-t) * m.cfg.Unit
}

func ceiling(num, precision Time) Time {
	return (num/precision + 1) * precision
}

// ComputeBucket returns the expiration window after current, rounded up to the
// next multiple of bucket. Every current inside the same bucket produces the
// same result. It panics when bucket is smaller than one unit.
func (m *Model) ComputeBucket(current Time, window, bucket time.Duration) Time {
	units := Time(bucket / m.cfg.Unit)
	if units <= 0 {
		panic(fmt.Sprintf("expiration: bucket %v is smaller than unit %v", bucket, m.cfg.Unit))
	}
	return magicOffset - ceiling(magicOffset-current+Time(window/m.cfg.Unit), units)
}

// ComputeAsync buckets a regular (non-interactive) update.
func (m *Model) ComputeAsync(current Time) Time {
	return m.ComputeBucket(current, m.cfg.AsyncExpiration, m.cfg.AsyncBucket)
}

// ComputeInteractive buckets an update caused by direct user input.
func (m *Model) ComputeInteractive(current Time) Time {
	window := m.cfg.InteractiveExpiration
	if m.cfg.Development {
		window = m.cfg.InteractiveDevExpiration
	}
	return m.ComputeBucket(current, window, m.cfg.InteractiveBucket)
}

// Until is the clock time remaining between current and expiration. It is
// negative when the expiration has already passed.
func (m *Model) Until(current, expiration Time) time.Duration {
	return m.ToDuration(expiration) - m.ToDuration(current)
}

// InferPriority classifies how urgent expiration is relative to current, using
// the same windows the scheduler derives its timeouts from.
func (m *Model) InferPriority(current, expiration Time) priority.Level {
	switch expiration {
	case Sync:
		return priority.Immediate
	case Never:
		return priority.Idle
	}
	until := m.Until(current, expiration)
	switch {
	case until <= 0:
		return priority.Immediate
	case until <= m.cfg.Thresholds.UserBlocking:
		return priority.UserBlocking
	case until <= m.cfg.Thresholds.Normal:
		return priority.Normal
	default:
		return priority.Idle
	}
}
