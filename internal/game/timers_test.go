// internal/game/timers_test.go
package game

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerSet_ScheduleFires(t *testing.T) {
	ts := NewTimerSet()
	defer ts.StopAll()

	var fired atomic.Int32
	ts.Schedule("k", 20*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestTimerSet_CancelPreventsFiring(t *testing.T) {
	ts := NewTimerSet()
	defer ts.StopAll()

	var fired atomic.Int32
	ts.Schedule("k", 30*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, ts.Cancel("k"))
	assert.False(t, ts.Cancel("k"), "already cancelled")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerSet_RescheduleReplacesPending(t *testing.T) {
	ts := NewTimerSet()
	defer ts.StopAll()

	var first, second atomic.Int32
	ts.Schedule("k", 30*time.Millisecond, func() { first.Add(1) })
	ts.Schedule("k", 30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced task never runs")
	assert.Equal(t, int32(1), second.Load())
}

func TestTimerSet_IndependentKeys(t *testing.T) {
	ts := NewTimerSet()
	defer ts.StopAll()

	var a, b atomic.Int32
	ts.Schedule("a", 20*time.Millisecond, func() { a.Add(1) })
	ts.Schedule("b", 20*time.Millisecond, func() { b.Add(1) })
	ts.Cancel("a")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestTimerSet_StopAll(t *testing.T) {
	ts := NewTimerSet()

	var fired atomic.Int32
	ts.Schedule("a", 30*time.Millisecond, func() { fired.Add(1) })
	ts.Schedule("b", 30*time.Millisecond, func() { fired.Add(1) })
	ts.StopAll()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
