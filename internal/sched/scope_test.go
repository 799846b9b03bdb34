package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/priority"
)

func noop(bool) (Result, error) { return Done(), nil }

func TestRunAtPriority_ScopesPriorityAndEventStart(t *testing.T) {
	s, _, v := newManual(t)
	var inside priority.Level
	var task *Task

	err := s.RunAtPriority(priority.UserBlocking, func() error {
		inside = s.CurrentPriority()
		v.Spend(100 * time.Millisecond)
		task = s.ScheduleTask(priority.Normal, noop)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, priority.UserBlocking, inside)
	assert.Equal(t, 5*time.Second, task.ExpirationTime, "measured from the start of the scoped call")
	assert.Equal(t, priority.Normal, s.CurrentPriority())
	assert.Equal(t, unset, s.currentEventStart)

	later := s.ScheduleTask(priority.Normal, noop)
	assert.Equal(t, 5100*time.Millisecond, later.ExpirationTime)
}

func TestRunAtPriority_UnknownLevelRunsAtNormal(t *testing.T) {
	s, _, _ := newManual(t)
	var inner priority.Level

	require.NoError(t, s.RunAtPriority(priority.Low, func() error {
		return s.RunAtPriority(priority.Level(42), func() error {
			inner = s.CurrentPriority()
			return nil
		})
	}))
	assert.Equal(t, priority.Normal, inner)
}

func TestRunAtPriority_ErrorRestoresAndRearms(t *testing.T) {
	s, p, _ := newManual(t)
	boom := errors.New("boom")

	s.ScheduleTask(priority.Normal, noop)
	require.Equal(t, 1, p.requests)

	err := s.RunAtPriority(priority.Idle, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, priority.Normal, s.CurrentPriority())
	assert.Equal(t, 2, p.requests)
	assert.Equal(t, 1, p.cancels)

	require.NoError(t, s.RunAtPriority(priority.Idle, func() error { return nil }))
	assert.Equal(t, 2, p.requests, "success does not touch the pump")
}

func TestRunAtPriority_PanicRestoresContext(t *testing.T) {
	s, p, _ := newManual(t)
	s.ScheduleTask(priority.Normal, noop)

	assert.PanicsWithValue(t, "handler exploded", func() {
		_ = s.RunAtPriority(priority.Immediate, func() error { panic("handler exploded") })
	})
	assert.Equal(t, priority.Normal, s.CurrentPriority())
	assert.Equal(t, unset, s.currentEventStart)
	assert.Equal(t, 2, p.requests)
}

func TestNext(t *testing.T) {
	cases := []struct {
		ambient priority.Level
		want    priority.Level
	}{
		{priority.Immediate, priority.Normal},
		{priority.UserBlocking, priority.Normal},
		{priority.Normal, priority.Normal},
		{priority.Low, priority.Low},
		{priority.Idle, priority.Idle},
	}
	for _, tc := range cases {
		t.Run(tc.ambient.String(), func(t *testing.T) {
			s, _, _ := newManual(t)
			var got priority.Level
			require.NoError(t, s.RunAtPriority(tc.ambient, func() error {
				return s.Next(func() error {
					got = s.CurrentPriority()
					return nil
				})
			}))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWrapCallback_CapturesPriorityAtWrapTime(t *testing.T) {
	s, _, _ := newManual(t)
	var got priority.Level
	var wrapped func() error

	require.NoError(t, s.RunAtPriority(priority.Low, func() error {
		wrapped = s.WrapCallback(func() error {
			got = s.CurrentPriority()
			return nil
		})
		return nil
	}))

	require.NoError(t, s.RunAtPriority(priority.UserBlocking, wrapped))
	assert.Equal(t, priority.Low, got)
	assert.Equal(t, priority.Normal, s.CurrentPriority())
}

func TestWrapAtPriority(t *testing.T) {
	s, _, _ := newManual(t)
	var got priority.Level
	fn := s.WrapAtPriority(priority.Idle, func() error {
		got = s.CurrentPriority()
		return nil
	})

	require.NoError(t, fn())
	assert.Equal(t, priority.Idle, got)
}

func TestRunAtPriorityValue(t *testing.T) {
	s, _, _ := newManual(t)

	n, err := RunAtPriorityValue(s, priority.UserBlocking, func() (int, error) {
		return int(s.CurrentPriority()), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int(priority.UserBlocking), n)

	boom := errors.New("boom")
	_, err = RunAtPriorityValue(s, priority.Low, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}
