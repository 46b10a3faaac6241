// internal/game/timers.go
package game

import (
	"sync"
	"time"
)

// TimerSet owns every authoritative timeout of a session (disconnect grace
// periods, the turn timer, the inactivity timer) as cancellable tasks keyed
// by id. Scheduling a key replaces any pending task under that key; a fired
// task checks it is still current before running, so a cancel that races the
// firing is safe.
type TimerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[string]*time.Timer)}
}

// Schedule arranges fn to run after d, replacing any pending task for key.
func (ts *TimerSet) Schedule(key string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if old, ok := ts.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		ts.mu.Lock()
		current := ts.timers[key] == t
		if current {
			delete(ts.timers, key)
		}
		ts.mu.Unlock()
		if current {
			fn()
		}
	})
	ts.timers[key] = t
}

// Cancel stops a pending task. Reports whether one was pending.
func (ts *TimerSet) Cancel(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(ts.timers, key)
	return true
}

// StopAll cancels every pending task. Used on session teardown.
func (ts *TimerSet) StopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for k, t := range ts.timers {
		t.Stop()
		delete(ts.timers, k)
	}
}
