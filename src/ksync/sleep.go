package ksync

import (
	"sync"

	"sched"
)

/// SleepLock is a mutex that parks a blocked thread instead of spinning, and
/// donates the waiter's priority to the holder while it waits -- the only
/// lock flavor that participates in priority donation, mirroring
/// sync/sleep.rs.
type SleepLock struct {
	inner *Semaphore

	mu     sync.Mutex
	holder *sched.Thread
}

/// NewSleepLock creates an unheld lock.
func NewSleepLock() *SleepLock {
	return &SleepLock{inner: NewSemaphore(1)}
}

func (l *SleepLock) currentHolder() *sched.Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

/// Acquire blocks until the lock is free, donating the calling thread's
/// priority to whoever holds it (and along that holder's own donation
/// chain) for as long as it waits.
func (l *SleepLock) Acquire() {
	current := sched.Current()

	if holder := l.currentHolder(); holder != nil {
		sched.AddEdge(current, holder)
		sched.UpdateDonationChainPriority(current)
	}

	l.inner.Down()

	l.mu.Lock()
	l.holder = current
	l.mu.Unlock()

	// Re-target donations from any threads that piled up waiting on the
	// semaphore directly onto the new holder, and recompute its priority.
	for _, waiter := range l.inner.Waiters() {
		sched.AddEdge(waiter, current)
	}
	sched.UpdateThreadPriority(current)
	sched.UpdateDonationChainPriority(current)
}

/// Release hands the lock back, removing every donation edge aimed at the
/// releasing thread on this lock's account.
func (l *SleepLock) Release() {
	current := sched.Current()
	if l.currentHolder() != current {
		panic("ksync: SleepLock released by a thread that doesn't hold it")
	}

	for _, waiter := range l.inner.Waiters() {
		sched.RemoveEdge(waiter, current)
	}
	sched.UpdateThreadPriority(current)

	l.mu.Lock()
	l.holder = nil
	l.mu.Unlock()

	l.inner.Up()
}
