package render

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/expiration"
	"framesched/internal/host"
	"framesched/internal/priority"
	"framesched/internal/sched"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRenderer(h host.Host, work WorkFunc) (*Renderer, *sched.Scheduler) {
	logger := discardLogger()
	s := sched.New(h, sched.DefaultConfig(), sched.WithLogger(logger))
	model := expiration.New(expiration.DefaultConfig())
	return NewRenderer(s, model, work, logger), s
}

func countWork(root *Root) error { return nil }

func TestScheduleUpdate_CoalescesWithinBucket(t *testing.T) {
	v := host.NewVirtual(time.Second)
	r, s := newRenderer(host.WithoutFrames(v), countWork)
	root := NewRoot("app")

	first := r.ScheduleUpdate(root, 1, false)
	task := root.CallbackTask()
	require.NotNil(t, task)
	assert.Equal(t, priority.Idle, task.Priority, "async work is inferred as low urgency")
	assert.Equal(t, 6250*time.Millisecond, task.ExpirationTime)

	v.Spend(240 * time.Millisecond)
	second := r.ScheduleUpdate(root, 2, false)
	assert.Equal(t, first, second)
	assert.Same(t, task, root.CallbackTask(), "same bucket keeps the callback")
	assert.Equal(t, 3, root.Pending())
	assert.EqualValues(t, 1, s.Stats().Scheduled)
}

func TestScheduleUpdate_SoonerUpdateReplacesCallback(t *testing.T) {
	v := host.NewVirtual(time.Second)
	r, s := newRenderer(host.WithoutFrames(v), countWork)
	root := NewRoot("app")

	r.ScheduleUpdate(root, 1, false)
	async := root.CallbackTask()

	v.Spend(240 * time.Millisecond)
	r.ScheduleUpdate(root, 1, true)
	interactive := root.CallbackTask()
	require.NotNil(t, interactive)
	assert.NotSame(t, async, interactive)
	assert.False(t, async.Scheduled())
	assert.Equal(t, priority.UserBlocking, interactive.Priority)
	assert.Equal(t, 1400*time.Millisecond, interactive.ExpirationTime)

	// A later async update does not push the interactive deadline back.
	r.ScheduleUpdate(root, 1, false)
	assert.Same(t, interactive, root.CallbackTask())

	require.NoError(t, v.Advance(0))
	assert.Equal(t, 3, root.Rendered())
	assert.Equal(t, 1, root.Commits())
	assert.Nil(t, root.CallbackTask())
	assert.Equal(t, expiration.NoWork, root.CallbackExpiration())
	assert.EqualValues(t, 1, s.Stats().Cancelled)
}

func TestScheduleUpdate_WorkYieldsAcrossFrames(t *testing.T) {
	v := host.NewVirtual(0)
	r, s := newRenderer(v, func(*Root) error {
		v.Spend(5 * time.Millisecond)
		return nil
	})
	root := NewRoot("app")

	r.ScheduleUpdate(root, 20, false)
	require.NoError(t, v.Frame(16*time.Millisecond))
	require.Positive(t, root.Rendered())
	require.Positive(t, root.Pending())

	live := root.CallbackTask()
	require.NotNil(t, live, "the continuation carries the remaining work")

	r.ScheduleUpdate(root, 5, false)
	assert.Same(t, live, root.CallbackTask())

	for i := 0; i < 20 && root.Pending() > 0; i++ {
		require.NoError(t, v.Frame(16*time.Millisecond))
	}
	assert.Equal(t, 25, root.Rendered())
	assert.Equal(t, 1, root.Commits())
	assert.EqualValues(t, 1, s.Stats().Scheduled)
	assert.Positive(t, s.Stats().Yielded)
}

func TestScheduleUpdate_WorkErrorClearsCallback(t *testing.T) {
	v := host.NewVirtual(0)
	boom := errors.New("boom")
	fail := true
	r, _ := newRenderer(host.WithoutFrames(v), func(*Root) error {
		if fail {
			return boom
		}
		return nil
	})
	root := NewRoot("app")

	r.ScheduleUpdate(root, 2, true)
	err := v.Advance(0)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "render app")
	assert.Nil(t, root.CallbackTask())
	assert.Equal(t, 2, root.Pending())

	fail = false
	r.ScheduleUpdate(root, 0, true)
	require.NoError(t, v.Advance(0))
	assert.Equal(t, 2, root.Rendered())
	assert.Equal(t, 1, root.Commits())
}

func TestScheduleUpdate_DuringRenderIsDrainedByRunningPass(t *testing.T) {
	v := host.NewVirtual(0)
	var (
		r       *Renderer
		s       *sched.Scheduler
		root    = NewRoot("app")
		updated bool
	)
	r, s = newRenderer(v, func(*Root) error {
		if !updated {
			updated = true
			r.ScheduleUpdate(root, 1, true)
			assert.Nil(t, s.PeekNextTask(), "no second callback while the root renders")
		}
		v.Spend(5 * time.Millisecond)
		return nil
	})

	r.ScheduleUpdate(root, 3, false)
	for i := 0; i < 30 && root.Pending() > 0; i++ {
		require.NoError(t, v.Frame(16*time.Millisecond))
	}
	require.NoError(t, v.RunFrames(5, 16*time.Millisecond))

	assert.Equal(t, 4, root.Rendered())
	assert.Equal(t, 1, root.Commits())
	assert.Nil(t, root.CallbackTask())
	assert.Equal(t, expiration.NoWork, root.CallbackExpiration())
	assert.Nil(t, s.PeekNextTask())
	assert.EqualValues(t, 1, s.Stats().Scheduled)
}

func TestScheduleUpdate_SoonerUpdateDuringRenderReschedulesOnYield(t *testing.T) {
	v := host.NewVirtual(0)
	var (
		r           *Renderer
		root        = NewRoot("app")
		interactive expiration.Time
		updated     bool
	)
	r, s := newRenderer(v, func(*Root) error {
		if !updated {
			updated = true
			interactive = r.ScheduleUpdate(root, 1, true)
		}
		v.Spend(20 * time.Millisecond)
		return nil
	})

	r.ScheduleUpdate(root, 3, false)
	async := root.CallbackTask()
	require.NotNil(t, async)

	// The first frame ends at 49ms; two 20ms units overrun it.
	require.NoError(t, v.Frame(16*time.Millisecond))
	assert.Equal(t, 2, root.Rendered())
	assert.Equal(t, 2, root.Pending())

	live := root.CallbackTask()
	require.NotNil(t, live)
	assert.NotSame(t, async, live)
	assert.Nil(t, async.Continuation(), "the async pass hands over instead of continuing")
	assert.Equal(t, priority.UserBlocking, live.Priority)
	assert.Equal(t, interactive, root.CallbackExpiration())
	assert.Len(t, s.PendingTasks(), 1)

	for i := 0; i < 30 && root.Pending() > 0; i++ {
		require.NoError(t, v.Frame(16*time.Millisecond))
	}
	assert.Equal(t, 4, root.Rendered())
	assert.Equal(t, 1, root.Commits())
	assert.Nil(t, root.CallbackTask())
	assert.Nil(t, s.PeekNextTask())
	assert.EqualValues(t, 2, s.Stats().Scheduled)
}
