package ksync

import "sync"

/// Condvar is a condition variable used together with a caller-held mutex,
/// mirroring sync/condvar.rs: each waiter parks on its own private
/// one-shot semaphore rather than sharing a single counter, so notify_one
/// wakes exactly one specific waiter.
type Condvar struct {
	mu      sync.Mutex
	waiters []*Semaphore
}

/// NewCondvar creates an empty condition variable.
func NewCondvar() *Condvar {
	return &Condvar{}
}

/// Wait atomically releases guard and blocks the calling thread, then
/// reacquires guard before returning. The caller must hold guard, and must
/// re-check its predicate in a loop after Wait returns (spec.md §4.E).
func (c *Condvar) Wait(guard *sync.Mutex) {
	sema := NewSemaphore(0)
	c.mu.Lock()
	c.waiters = append([]*Semaphore{sema}, c.waiters...)
	c.mu.Unlock()

	guard.Unlock()
	sema.Down()
	guard.Lock()
}

// waiterPriority reports the effective priority of the thread parked on s.
// Wait pushes sema into c.waiters before calling sema.Down(), but both run
// without yielding the baton in between, so by the time any other thread
// can call popWaiter, sema.Down() has already parked its caller onto sema
// (mirroring condvar.rs's front_waiter().priority lookup).
func waiterPriority(s *Semaphore) uint32 {
	w := s.Waiters()
	if len(w) == 0 {
		return 0
	}
	return w[0].EffectivePriority()
}

// popWaiter removes and returns the highest-priority queued waiter, ties
// broken FIFO (sync/condvar.rs::pop_max_priority_waiter). c.waiters holds
// the oldest waiter at the end of the slice (Wait prepends), so the scan
// starts there and only a strictly higher priority displaces it.
func (c *Condvar) popWaiter() *Semaphore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return nil
	}
	pos := len(c.waiters) - 1
	maxP := waiterPriority(c.waiters[pos])
	for i := pos - 1; i >= 0; i-- {
		if p := waiterPriority(c.waiters[i]); p > maxP {
			maxP = p
			pos = i
		}
	}
	s := c.waiters[pos]
	c.waiters = append(c.waiters[:pos], c.waiters[pos+1:]...)
	return s
}

/// Signal wakes one waiting thread, if any. The caller should hold the
/// associated mutex while calling this (spec.md §4.E).
func (c *Condvar) Signal() {
	if s := c.popWaiter(); s != nil {
		s.Up()
	}
}

/// Broadcast wakes every waiting thread.
func (c *Condvar) Broadcast() {
	for {
		s := c.popWaiter()
		if s == nil {
			return
		}
		s.Up()
	}
}
