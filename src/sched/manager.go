package sched

import (
	"fmt"
	"sync"
	"time"
)

/// manager is the single scheduler instance (the running thread plus the
/// ready queue), mirroring the Rust original's Manager singleton
/// (thread::Manager::get()). It keeps no table of all threads.
type manager struct {
	mu         sync.Mutex
	current    *Thread
	scheduler  Scheduler
	lastSwitch time.Time
}

var theManager = &manager{scheduler: NewPriorityScheduler()}

/// UsePriorityScheduler and UseFIFOScheduler pick the ready-queue discipline;
/// call before Init. The original selects between these with a build-time
/// feature flag (thread-scheduler-priority); here it is a plain function
/// call, made once during boot/test setup.
func UsePriorityScheduler() { theManager.scheduler = NewPriorityScheduler() }
func UseFIFOScheduler()     { theManager.scheduler = NewFIFOScheduler() }

/// Init bootstraps the scheduler with the calling goroutine as the first
/// running thread (the boot thread). It must be called once before Spawn,
/// Current, or Schedule are used.
func Init(name string) *Thread {
	t := newThread(name, PriDefault)
	t.setStatus(Running)
	theManager.mu.Lock()
	theManager.current = t
	theManager.lastSwitch = time.Now()
	theManager.mu.Unlock()
	return t
}

/// Current returns the running thread.
func Current() *Thread {
	theManager.mu.Lock()
	defer theManager.mu.Unlock()
	return theManager.current
}

/// Spawn creates a new thread running f on its own goroutine, registers it
/// Ready, and returns it immediately without yielding control (matching
/// Builder::spawn in thread/imp.rs, minus its priority-preemption check,
/// which callers get for free by calling Schedule themselves when needed).
func Spawn(name string, priority uint32, f func()) *Thread {
	t := newThread(name, priority)
	theManager.mu.Lock()
	theManager.scheduler.Register(t)
	theManager.mu.Unlock()

	go func() {
		<-t.runCh
		f()
		Exit()
	}()

	return t
}

/// Schedule yields the CPU: if another thread is ready, it hands the baton
/// to it and (unless the current thread is Dying) blocks until the baton
/// comes back.
func Schedule() {
	theManager.mu.Lock()
	prev := theManager.current
	now := time.Now()
	elapsed := now.Sub(theManager.lastSwitch)
	next := theManager.scheduler.Pop()
	if next == nil {
		theManager.mu.Unlock()
		if prev.Status() != Running {
			panic("sched: no ready thread to run")
		}
		return
	}
	theManager.current = next
	theManager.lastSwitch = now
	next.setStatus(Running)

	// A thread reaching Schedule with its status still Running got here by
	// a plain yield (SetPriority, a preemption check, ...) rather than
	// through Block/Exit/Sleep, which already moved it to Blocked/Dying
	// themselves. Such a thread is still runnable, so put it back on the
	// ready queue instead of losing it.
	if prev != next && prev.Status() == Running {
		prev.setStatus(Ready)
		theManager.scheduler.Register(prev)
	}
	theManager.mu.Unlock()

	// All scheduled time charges to sys time: without the trap plumbing
	// that marks a user/kernel-mode boundary (spec.md §1, out of scope),
	// this core has no signal to attribute any of it to Userns instead,
	// mirroring accnt.go's Systadd being the scheduler's own counter.
	prev.Accnt.SysNsec += elapsed.Nanoseconds()

	next.runCh <- struct{}{}
	if prev != next {
		// A Dying prev has nothing left to register it, so this receive
		// blocks forever -- which is the point: Exit's caller must never
		// reach the code after Schedule, and its goroutine simply parks.
		<-prev.runCh
	}
}

/// Exit marks the current thread Dying and schedules another thread. It
/// never returns to its caller -- once Schedule hands the baton away, the
/// underlying goroutine stays parked inside Schedule for good.
func Exit() {
	current := Current()
	current.freeStack()
	current.setStatus(Dying)
	Schedule()
	panic("sched: exited thread was scheduled again")
}

/// Block marks the current thread Blocked and yields the CPU. The thread
/// will not run again until a WakeUp call makes it Ready.
func Block() {
	t := Current()
	t.setStatus(Blocked)
	Schedule()
}

/// WakeUp makes a Blocked thread Ready and registers it with the scheduler,
/// preempting the current thread if the woken thread now outranks it.
func WakeUp(t *Thread) {
	if t.Status() != Blocked {
		panic(fmt.Sprintf("sched: WakeUp on non-blocked thread %s", t))
	}
	t.setStatus(Ready)
	theManager.mu.Lock()
	theManager.scheduler.Register(t)
	theManager.mu.Unlock()

	if t.EffectivePriority() > Current().EffectivePriority() {
		Schedule()
	}
}

/// SetPriority sets the current thread's base priority, recomputes its
/// effective priority and propagates the change along its donation chain,
/// then yields in case a higher-priority thread is now ready.
func SetPriority(p uint32) {
	t := Current()
	t.SetPriority(p)
	UpdateThreadPriority(t)
	UpdateDonationChainPriority(t)
	Schedule()
}

/// GetPriority returns the current thread's effective priority.
func GetPriority() uint32 {
	return Current().EffectivePriority()
}

/// Sleep blocks the current thread for the given number of timer ticks.
func Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	t := Current()
	t.setStatus(Blocked)
	TheAlarm.Register(t, ticks)
	Schedule()
}
