// Package ksync implements the blocking synchronization primitives spec.md
// §4.E names: Semaphore, Condvar, and SleepLock, grounded on the Rust
// original's sync/{sema,condvar,sleep}.rs. Internal bookkeeping (the
// semaphore's own counter and wait list) uses a plain sync.Mutex, the
// equivalent of the original's interrupt-disabling lock: only one goroutine
// ever runs kernel code at a time (see package sched), so a regular mutex
// already gives the same exclusion the original gets from disabling
// interrupts.
package ksync

import (
	"sync"

	"sched"
)

/// Semaphore is a counting semaphore whose waiters are woken in priority
/// order (ties broken FIFO), mirroring sync/sema.rs.
type Semaphore struct {
	mu      sync.Mutex
	value   int
	waiters []*sched.Thread
}

/// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{value: n}
}

func (s *Semaphore) popWaiter() *sched.Thread {
	if len(s.waiters) == 0 {
		return nil
	}
	maxP := s.waiters[0].EffectivePriority()
	pos := 0
	for i, t := range s.waiters {
		if p := t.EffectivePriority(); p > maxP {
			maxP = p
			pos = i
		}
	}
	t := s.waiters[pos]
	s.waiters = append(s.waiters[:pos], s.waiters[pos+1:]...)
	return t
}

/// Down is the P operation: blocks until the semaphore's value is positive,
/// then decrements it.
func (s *Semaphore) Down() {
	for {
		s.mu.Lock()
		if s.value > 0 {
			s.value--
			s.mu.Unlock()
			return
		}
		s.waiters = append(s.waiters, sched.Current())
		s.mu.Unlock()
		sched.Block()
	}
}

/// Up is the V operation: increments the semaphore's value and wakes the
/// highest-priority waiter, if any.
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.value++
	woken := s.popWaiter()
	s.mu.Unlock()

	if woken != nil {
		sched.WakeUp(woken)
	}
}

/// Value reports the semaphore's current value, for diagnostics and tests.
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

/// Waiters returns a snapshot of the threads currently blocked in Down, used
/// by SleepLock to re-donate priority to a new holder (sync/sleep.rs).
func (s *Semaphore) Waiters() []*sched.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*sched.Thread, len(s.waiters))
	copy(out, s.waiters)
	return out
}
