package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func observeEvery(b *Budget, start, interval time.Duration, n int) {
	for i := 0; i < n; i++ {
		b.Observe(start + time.Duration(i)*interval)
	}
}

func TestBudget_ConvergesAfterTwoShortFrames(t *testing.T) {
	b := NewBudget(33*time.Millisecond, 8*time.Millisecond)
	b.Observe(0)
	assert.Equal(t, 33*time.Millisecond, b.FrameTime())
	b.Observe(16 * time.Millisecond)
	assert.Equal(t, 33*time.Millisecond, b.FrameTime(), "one short frame is not enough")
	b.Observe(32 * time.Millisecond)
	assert.Equal(t, 16*time.Millisecond, b.FrameTime())
	assert.Equal(t, 48*time.Millisecond, b.Deadline())

	observeEvery(b, 48*time.Millisecond, 16*time.Millisecond, 10)
	assert.Equal(t, 16*time.Millisecond, b.FrameTime())
}

func TestBudget_IgnoresSingleCatchUpFrame(t *testing.T) {
	b := NewBudget(33*time.Millisecond, 8*time.Millisecond)
	for _, ts := range []time.Duration{0, 33, 50, 83, 116, 149} {
		b.Observe(ts * time.Millisecond)
	}
	assert.Equal(t, 33*time.Millisecond, b.FrameTime())
}

func TestBudget_FloorRejectsImplausibleRates(t *testing.T) {
	b := NewBudget(33*time.Millisecond, 8*time.Millisecond)
	observeEvery(b, 0, 4*time.Millisecond, 10)
	assert.Equal(t, 8*time.Millisecond, b.FrameTime())
}

func TestBudget_TracksFasterDisplays(t *testing.T) {
	b := NewBudget(33*time.Millisecond, 8*time.Millisecond)
	observeEvery(b, time.Second, 11*time.Millisecond, 5)
	assert.Equal(t, 11*time.Millisecond, b.FrameTime())
}

func TestBudget_Remaining(t *testing.T) {
	b := NewBudget(33*time.Millisecond, 8*time.Millisecond)
	assert.False(t, b.Remaining(0), "no frame observed yet")
	b.Observe(100 * time.Millisecond)
	assert.True(t, b.Remaining(132*time.Millisecond))
	assert.False(t, b.Remaining(133*time.Millisecond))
}
