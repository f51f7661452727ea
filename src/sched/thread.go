// Package sched implements the scheduler and thread manager (spec.md §4.G)
// and the priority donation graph (§4.F), grounded on the Rust original's
// thread.rs/thread/imp.rs and thread/scheduler/priority/{donate,queue}.rs.
//
// The original relies on a RISC-V context switch (register save/restore in
// assembly) to suspend and resume kernel threads; that assembly is out of
// scope here (spec.md §1). Instead each Thread runs on its own goroutine,
// and the scheduler hands control between them with a one-slot channel
// "baton" (see Schedule in manager.go) -- at any instant exactly one
// goroutine holds the baton and is considered "running" kernel code, giving
// the same happens-before guarantees the original gets from disabling
// interrupts around its critical sections.
package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mem"
	"pagetable"
	"spt"
	"util"
)

/// Status mirrors the Rust original's thread::Status.
type Status int

const (
	Ready Status = iota
	Running
	Blocked
	Dying
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Dying:
		return "Dying"
	default:
		return "unknown"
	}
}

const (
	PriDefault uint32 = 31
	PriMax     uint32 = 63
	PriMin     uint32 = 0
)

// StackSize and StackAlign describe the kernel stack newThread kallocs for
// every thread, mirroring imp.rs's STACK_SIZE/STACK_ALIGN. stackMagic is
// stamped at the bottom of that stack and checked by StackOverflowed, the
// same canary imp.rs::MAGIC/overflow use.
const (
	StackSize  = mem.PGSIZE * 4
	StackAlign = 16

	stackMagic = 0xdeadbeef
)

/// Accnt is the per-thread rusage-style accounting biscuit's accnt.go keeps:
/// cumulative nanoseconds spent in user mode vs. kernel mode.
type Accnt struct {
	UserNsec int64
	SysNsec  int64
}

/// Rusage serializes a as two timeval pairs (user, then sys; seconds then
/// microseconds), the on-the-wire rusage shape biscuit's
/// Accnt_t.To_rusage produces.
func (a Accnt) Rusage() []byte {
	buf := make([]byte, 32)
	totv := func(nsec int64) (int, int) {
		return int(nsec / 1e9), int((nsec % 1e9) / 1000)
	}
	s, us := totv(a.UserNsec)
	util.Writen(buf, 8, 0, s)
	util.Writen(buf, 8, 8, us)
	s, us = totv(a.SysNsec)
	util.Writen(buf, 8, 16, s)
	util.Writen(buf, 8, 24, us)
	return buf
}

var nextTid int64

/// Thread is one schedulable kernel thread.
type Thread struct {
	tid  int
	Name string

	mu                sync.Mutex
	status            Status
	priority          uint32
	effectivePriority uint32
	donee             *Thread
	donors            []*Thread

	Accnt Accnt

	/// PageTable and SuppTable are non-nil only for user threads.
	PageTable *pagetable.PageTable_t
	SuppTable *spt.Table

	/// User holds the proc package's UserProc for this thread. It is typed
	/// any here, not *proc.UserProc, because proc imports sched to create and
	/// schedule threads -- a concrete type would be an import cycle. proc is
	/// the only package that type-asserts this field.
	User any

	/// runCh is the baton: Schedule sends on it to resume this thread and the
	/// thread's own goroutine blocks receiving from it while suspended.
	runCh chan struct{}

	/// stack is this thread's kalloc'd kernel stack, stamped with
	/// stackMagic at offset 0. Nil when mem.Heap was never installed
	/// (scheduler-only tests that don't care about memory management).
	stack []byte
}

func newThread(name string, priority uint32) *Thread {
	t := &Thread{
		tid:               int(atomic.AddInt64(&nextTid, 1)) - 1,
		Name:              name,
		status:            Ready,
		priority:          priority,
		effectivePriority: priority,
		runCh:             make(chan struct{}, 1),
	}
	if mem.Heap != nil {
		t.stack = mem.Kalloc(StackSize, StackAlign)
		util.Writen(t.stack, 8, 0, stackMagic)
	}
	return t
}

/// StackOverflowed reports whether the canary word at the bottom of t's
/// kernel stack has been clobbered, mirroring imp.rs::overflow. A thread
/// with no backing stack (mem.Heap was nil when it was created) never
/// overflows.
func (t *Thread) StackOverflowed() bool {
	if len(t.stack) == 0 {
		return false
	}
	return util.Readn(t.stack, 8, 0) != stackMagic
}

/// freeStack returns t's kernel stack to mem.Heap, mirroring imp.rs's Drop
/// impl freeing it via kfree. Safe to call more than once.
func (t *Thread) freeStack() {
	if t.stack == nil {
		return
	}
	mem.Kfree(t.stack, StackSize, StackAlign)
	t.stack = nil
}

func (t *Thread) Id() int { return t.tid }

func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Thread) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Thread) Priority() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

func (t *Thread) SetPriority(p uint32) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

func (t *Thread) EffectivePriority() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effectivePriority
}

func (t *Thread) SetEffectivePriority(p uint32) {
	t.mu.Lock()
	t.effectivePriority = p
	t.mu.Unlock()
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)[%s]*%d|%d*", t.Name, t.tid, t.Status(), t.Priority(), t.EffectivePriority())
}
