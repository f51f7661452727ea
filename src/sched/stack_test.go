package sched

import (
	"testing"

	"mem"
)

// Without a kernel heap installed, threads get no backing stack and never
// report an overflow -- the common case for scheduler-only tests in this
// package, none of which set mem.Heap.
func TestStackOverflowedFalseWithoutHeap(t *testing.T) {
	mem.Heap = nil
	UseFIFOScheduler()
	boot := Init("boot")
	if boot.StackOverflowed() {
		t.Fatalf("StackOverflowed() = true for a thread with no backing stack")
	}
}

// A freshly kalloc'd stack carries the canary untouched, and Exit returns
// its frames to the heap.
func TestThreadStackLifecycle(t *testing.T) {
	pool := mem.NewPool(8)
	mem.Heap = pool
	defer func() { mem.Heap = nil }()

	UseFIFOScheduler()
	Init("boot")

	before := pool.Free_len()
	framesPerStack := StackSize / mem.PGSIZE

	var worker *Thread
	Spawn("worker", PriDefault, func() {
		worker = Current()
		if worker.StackOverflowed() {
			t.Errorf("StackOverflowed() = true for an untouched stack")
		}
	})
	if got := pool.Free_len(); got != before-framesPerStack {
		t.Fatalf("pool.Free_len() = %d after Spawn, want %d", got, before-framesPerStack)
	}

	Schedule() // boot -> worker -> Exit frees worker's stack

	if got := pool.Free_len(); got != before {
		t.Fatalf("pool.Free_len() = %d after worker exited, want %d (stack freed)", got, before)
	}
}

// Clobbering the canary word is detected by StackOverflowed.
func TestStackOverflowedDetectsClobberedCanary(t *testing.T) {
	pool := mem.NewPool(8)
	mem.Heap = pool
	defer func() { mem.Heap = nil }()

	UseFIFOScheduler()
	boot := Init("boot")
	defer boot.freeStack()

	if boot.StackOverflowed() {
		t.Fatalf("fresh stack already reports overflow")
	}
	boot.stack[0] ^= 0xff
	if !boot.StackOverflowed() {
		t.Fatalf("StackOverflowed() = false after clobbering the canary")
	}
}
