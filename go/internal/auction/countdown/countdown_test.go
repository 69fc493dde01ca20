package countdown

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdown_TickDecrementsThenExpires(t *testing.T) {
	fired := 0
	c := New(func() { fired++ })
	c.Start(3)

	require.True(t, c.Tick())
	assert.Equal(t, 2, c.Remaining())
	require.True(t, c.Tick())
	assert.Equal(t, 1, c.Remaining())
	assert.Equal(t, 0, fired)

	require.True(t, c.Tick())
	assert.Equal(t, 1, fired)
	assert.Equal(t, StateIdle, c.State())

	// idle countdown ignores ticks
	assert.False(t, c.Tick())
	assert.Equal(t, 1, fired)
}

func TestCountdown_StartCancelsPreviousPhase(t *testing.T) {
	c := New(nil)
	c.Start(10)
	c.Tick()
	first := c.Epoch()

	c.Start(5)
	assert.Equal(t, 5, c.Remaining())
	assert.NotEqual(t, first, c.Epoch())

	// a tick issued for the old phase is dropped
	assert.False(t, c.TickAt(first))
	assert.Equal(t, 5, c.Remaining())
	assert.True(t, c.TickAt(c.Epoch()))
	assert.Equal(t, 4, c.Remaining())
}

func TestCountdown_CancelDoesNotFire(t *testing.T) {
	fired := false
	c := New(func() { fired = true })
	c.Start(1)
	c.Cancel()

	assert.False(t, c.Tick())
	assert.False(t, fired)
	assert.Equal(t, 1, c.Remaining())
}

func TestCountdown_PauseResumeKeepsRemaining(t *testing.T) {
	c := New(nil)
	c.Start(10)
	c.Tick()
	c.Tick()

	left := c.Pause()
	assert.Equal(t, 8, left)
	assert.False(t, c.Running())

	// pausing twice is harmless
	epoch := c.Epoch()
	assert.Equal(t, 8, c.Pause())
	assert.Equal(t, epoch, c.Epoch())

	c.Resume(left)
	assert.True(t, c.Running())
	assert.Equal(t, 8, c.Remaining())
}

func TestCountdown_ExpiryCallbackMayStartNextPhase(t *testing.T) {
	var c *Countdown
	phases := 0
	c = New(func() {
		phases++
		if phases == 1 {
			c.Start(2)
		}
	})
	c.Start(1)

	c.Tick()
	assert.True(t, c.Running())
	assert.Equal(t, 2, c.Remaining())
}

func TestDriver_RearmsOnNewPhase(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := NewDriver(fc, time.Second)
	c := New(nil)

	assert.Nil(t, d.C())

	c.Start(5)
	d.Sync(c)
	require.NotNil(t, d.C())

	fc.Advance(time.Second)
	select {
	case <-d.C():
	case <-time.After(time.Second):
		t.Fatal("expected tick")
	}

	// a tick pending for the old phase disappears when the phase restarts
	fc.Advance(time.Second)
	c.Start(5)
	d.Sync(c)
	select {
	case <-d.C():
		t.Fatal("stale tick delivered after restart")
	default:
	}
	assert.Equal(t, c.Epoch(), d.Epoch())
}

func TestDriver_StopsWhenIdle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	d := NewDriver(fc, time.Second)
	c := New(nil)

	c.Start(2)
	d.Sync(c)
	c.Cancel()
	d.Sync(c)

	assert.Nil(t, d.C())
}
