package frame

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/host"
)

const frameInterval = 16 * time.Millisecond

type flushRecorder struct {
	calls []bool
	err   error
}

func (r *flushRecorder) flush(didTimeout bool) error {
	r.calls = append(r.calls, didTimeout)
	return r.err
}

func newFramePump(v *host.Virtual) *FramePump {
	return NewFramePump(v, v, DefaultConfig())
}

func TestFramePump_WaitsForRefresh(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, 5*time.Second)
	require.NoError(t, v.RunPosted())
	assert.Empty(t, r.calls, "no flush before the first refresh")
	assert.Equal(t, 1, v.PendingFrames())

	require.NoError(t, v.Frame(frameInterval))
	assert.Equal(t, []bool{false}, r.calls)
	assert.True(t, p.HasTimeRemaining())
	assert.False(t, p.ShouldYield())

	v.Spend(p.Budget().FrameTime())
	assert.True(t, p.ShouldYield())
}

func TestFramePump_OverdueWorkRunsImmediatelyAsTimedOut(t *testing.T) {
	v := host.NewVirtual(time.Second)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, time.Second-time.Millisecond)
	assert.Zero(t, v.PendingFrames())
	require.NoError(t, v.RunPosted())
	assert.Equal(t, []bool{true}, r.calls)
}

func TestFramePump_FallbackTimerWhenRefreshStalls(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, 5*time.Second)
	require.NoError(t, v.Advance(99*time.Millisecond))
	assert.Empty(t, r.calls)
	require.NoError(t, v.Advance(time.Millisecond))
	assert.Equal(t, []bool{false}, r.calls)

	// The refresh that lost the race must not flush again.
	require.NoError(t, v.RunFrames(3, frameInterval))
	require.NoError(t, v.Advance(time.Second))
	assert.Len(t, r.calls, 1)
}

func TestFramePump_RefreshCancelsFallbackTimer(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, 5*time.Second)
	require.NoError(t, v.Frame(frameInterval))
	require.Len(t, r.calls, 1)

	require.NoError(t, v.Advance(time.Second))
	assert.Len(t, r.calls, 1)
	assert.Zero(t, v.PendingTimers())
}

func TestFramePump_CancelInvalidatesInFlightMessage(t *testing.T) {
	v := host.NewVirtual(time.Second)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, 0)
	require.Equal(t, 1, v.PendingPosts())
	p.Cancel()
	require.NoError(t, v.RunPosted())
	assert.Empty(t, r.calls)

	var second flushRecorder
	p.Request(r.flush, 0)
	p.Cancel()
	p.Request(second.flush, 0)
	require.NoError(t, v.RunPosted())
	assert.Empty(t, r.calls)
	assert.Equal(t, []bool{true}, second.calls)
}

func TestFramePump_RequestWhileFlushingPostsImmediately(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var inner flushRecorder
	outer := func(bool) error {
		p.Request(inner.flush, 5*time.Second)
		return nil
	}

	p.Request(outer, 5*time.Second)
	require.NoError(t, v.Frame(frameInterval))
	assert.Equal(t, []bool{false}, inner.calls, "continued within the same frame")
}

func TestFramePump_ExhaustedFrameDefersUntilNextRefresh(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var inner flushRecorder
	outer := func(bool) error {
		v.Spend(time.Second)
		p.Request(inner.flush, 10*time.Second)
		return nil
	}

	p.Request(outer, 10*time.Second)
	require.NoError(t, v.Frame(frameInterval))
	assert.Empty(t, inner.calls, "frame budget exhausted and work not overdue")

	require.NoError(t, v.Frame(frameInterval))
	assert.Equal(t, []bool{false}, inner.calls)
}

func TestFramePump_ErrorsReachTheHost(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	boom := errors.New("boom")
	r := flushRecorder{err: boom}

	p.Request(r.flush, 0)
	assert.ErrorIs(t, v.RunPosted(), boom)
	assert.False(t, p.flushing)
}

func TestFramePump_GoesIdleWithoutWork(t *testing.T) {
	v := host.NewVirtual(0)
	p := newFramePump(v)
	var r flushRecorder

	p.Request(r.flush, 5*time.Second)
	require.NoError(t, v.RunFrames(2, frameInterval))
	assert.Zero(t, v.PendingFrames())
	assert.False(t, p.frameScheduled)
}

func TestTimerPump(t *testing.T) {
	v := host.NewVirtual(0)
	p := NewTimerPump(v)
	var second flushRecorder
	var first flushRecorder
	reentrant := func(didTimeout bool) error {
		p.Request(second.flush, 0)
		return first.flush(didTimeout)
	}

	p.Request(reentrant, time.Hour)
	require.NoError(t, v.Advance(0))
	assert.Equal(t, []bool{false}, first.calls)
	assert.Equal(t, []bool{false}, second.calls)
	assert.False(t, p.ShouldYield())
	assert.Zero(t, p.FrameTime())

	p.Request(first.flush, 0)
	p.Cancel()
	require.NoError(t, v.Advance(0))
	assert.Len(t, first.calls, 1)
}

func TestNew_SelectsPumpByCapability(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	v := host.NewVirtual(0)

	assert.IsType(t, &FramePump{}, New(v, DefaultConfig(), logger))
	assert.Empty(t, buf.String())

	assert.IsType(t, &TimerPump{}, New(host.WithoutFrames(v), DefaultConfig(), logger))
	assert.Contains(t, buf.String(), "falling back to timer pump")
	assert.Contains(t, buf.String(), "level=WARN")
}
