package ksync

import (
	"sync"
	"testing"

	"sched"
)

func TestSemaphoreUnblockedDownDoesNotBlock(t *testing.T) {
	sem := NewSemaphore(1)
	sem.Down()
	if sem.Value() != 0 {
		t.Fatalf("Value() = %d, want 0", sem.Value())
	}
}

// Two threads block in Down on an empty semaphore; each Up should wake the
// highest remaining priority waiter first, not FIFO.
func TestSemaphoreWakesHighestPriorityWaiterFirst(t *testing.T) {
	sched.UsePriorityScheduler()
	sched.Init("boot")
	sched.SetPriority(sched.PriMin)

	sem := NewSemaphore(0)
	var order []string

	sched.Spawn("low", 10, func() { sem.Down(); order = append(order, "low") })
	sched.Spawn("high", 30, func() { sem.Down(); order = append(order, "high") })

	sched.Schedule() // both threads run up to their blocking Down

	sem.Up()
	sem.Up()

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("order = %v, want [high low]", order)
	}
}

func TestCondvarSignalWakesInFIFOOrder(t *testing.T) {
	sched.UseFIFOScheduler()
	sched.Init("boot")

	var guard sync.Mutex
	cv := NewCondvar()
	var order []string

	sched.Spawn("a", sched.PriDefault, func() {
		guard.Lock()
		cv.Wait(&guard)
		order = append(order, "a")
		guard.Unlock()
	})
	sched.Spawn("b", sched.PriDefault, func() {
		guard.Lock()
		cv.Wait(&guard)
		order = append(order, "b")
		guard.Unlock()
	})

	sched.Schedule() // both threads run up to their Wait

	guard.Lock()
	cv.Signal()
	guard.Unlock()
	sched.Schedule()

	guard.Lock()
	cv.Signal()
	guard.Unlock()
	sched.Schedule()

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b] (FIFO wake order)", order)
	}
}

// Three threads park in Wait at different priorities; Signal should wake
// the highest-priority one first regardless of arrival order.
func TestCondvarSignalWakesHighestPriorityFirst(t *testing.T) {
	sched.UsePriorityScheduler()
	sched.Init("boot") // stays at PriDefault, above every worker below, so
	// Signal's WakeUp call never preempts boot while it still holds guard

	var guard sync.Mutex
	cv := NewCondvar()
	var order []string

	sched.Spawn("low", 10, func() {
		guard.Lock()
		cv.Wait(&guard)
		order = append(order, "low")
		guard.Unlock()
	})
	sched.Spawn("mid", 20, func() {
		guard.Lock()
		cv.Wait(&guard)
		order = append(order, "mid")
		guard.Unlock()
	})
	sched.Spawn("high", 30, func() {
		guard.Lock()
		cv.Wait(&guard)
		order = append(order, "high")
		guard.Unlock()
	})

	// With boot outranking every worker, each Schedule here runs exactly
	// one worker up to its own blocking Wait and hands the baton straight
	// back to boot (the highest remaining ready thread), one at a time.
	sched.Schedule()
	sched.Schedule()
	sched.Schedule()

	for _, want := range []string{"high", "mid", "low"} {
		guard.Lock()
		cv.Signal()
		guard.Unlock()
		sched.Schedule()

		if len(order) == 0 || order[len(order)-1] != want {
			t.Fatalf("order = %v, want %q woken next", order, want)
		}
	}
}

func TestCondvarBroadcastWakesAll(t *testing.T) {
	sched.UseFIFOScheduler()
	sched.Init("boot")

	var guard sync.Mutex
	cv := NewCondvar()
	var order []string

	for _, name := range []string{"a", "b", "c"} {
		name := name
		sched.Spawn(name, sched.PriDefault, func() {
			guard.Lock()
			cv.Wait(&guard)
			order = append(order, name)
			guard.Unlock()
		})
	}

	sched.Schedule() // all three run up to their Wait

	guard.Lock()
	cv.Broadcast()
	guard.Unlock()

	for i := 0; i < 5 && len(order) < 3; i++ {
		sched.Schedule()
	}

	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries after Broadcast", order)
	}
}

// A thread blocked acquiring a held SleepLock donates its priority to the
// holder, and the donation is undone once the lock is released.
func TestSleepLockDonatesPriorityToHolder(t *testing.T) {
	sched.UsePriorityScheduler()
	sched.Init("boot")
	sched.SetPriority(sched.PriMin)

	lock := NewSleepLock()
	released := false

	low := sched.Spawn("low", 10, func() {
		lock.Acquire()
		sched.Block() // simulate low being descheduled while holding the lock
		lock.Release()
		released = true
	})

	sched.Schedule() // boot -> low: acquires the lock, then blocks itself

	if got := low.EffectivePriority(); got != 10 {
		t.Fatalf("low.EffectivePriority() = %d, want 10 before any donation", got)
	}

	sched.Spawn("high", 30, func() {
		lock.Acquire()
		lock.Release()
	})

	sched.Schedule() // boot -> high: blocks on the held lock, donates to low

	if got := low.EffectivePriority(); got != 30 {
		t.Fatalf("low.EffectivePriority() = %d, want 30 after high donated", got)
	}

	sched.WakeUp(low)
	sched.Schedule() // drain whatever remains

	if !released {
		t.Fatalf("low never released the lock")
	}
	if got := low.EffectivePriority(); got != 10 {
		t.Fatalf("low.EffectivePriority() = %d, want 10 restored after Release", got)
	}
}
