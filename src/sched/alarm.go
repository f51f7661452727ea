package sched

import "sync"

type alarmEntry struct {
	thread *Thread
	ticks  int64
}

/// AlarmClock wakes up sleeping threads after their requested number of
/// timer ticks elapse, grounded on thread/alarm.rs.
type AlarmClock struct {
	mu      sync.Mutex
	entries []alarmEntry
}

var TheAlarm = &AlarmClock{}

/// Register schedules thread to become Ready after ticks more calls to Tick.
/// thread must already be Blocked.
func (a *AlarmClock) Register(thread *Thread, ticks int64) {
	a.mu.Lock()
	a.entries = append(a.entries, alarmEntry{thread, ticks})
	a.mu.Unlock()
}

/// Tick advances every pending alarm by one timer interrupt, waking any
/// thread whose countdown has reached zero.
func (a *AlarmClock) Tick() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.entries {
		a.entries[i].ticks--
	}

	remaining := a.entries[:0]
	for _, e := range a.entries {
		if e.ticks <= 0 {
			e.thread.setStatus(Ready)
			theManager.mu.Lock()
			theManager.scheduler.Register(e.thread)
			theManager.mu.Unlock()
		} else {
			remaining = append(remaining, e)
		}
	}
	a.entries = remaining
}
