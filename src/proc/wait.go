package proc

import (
	"sync"

	"ksync"
)

type exitRecord struct {
	sema   *ksync.Semaphore
	status int
	exited bool
}

/// waitManager tracks parent/child relationships between user processes and
/// lets a parent block until a specific child exits, grounded on
/// userproc/wait.rs::WaitManager. It is a package singleton, like the Rust
/// original's.
type waitManager struct {
	mu     sync.Mutex
	parent map[int]int
	status map[int]*exitRecord
}

var theWaitManager = &waitManager{
	parent: make(map[int]int),
	status: make(map[int]*exitRecord),
}

/// RegisterChild records that child was just spawned by parentTid. Exec
/// calls this itself; it is exported so a fork-style collaborator that
/// spawns a user thread some other way can still make it waitable.
func RegisterChild(childTid, parentTid int) {
	theWaitManager.mu.Lock()
	defer theWaitManager.mu.Unlock()
	theWaitManager.parent[childTid] = parentTid
	theWaitManager.status[childTid] = &exitRecord{sema: ksync.NewSemaphore(0)}
}

/// waitForChild blocks callerTid until child tid exits, returning its exit
/// status. ok is false if tid never named a child of the caller (already
/// reaped, or never spawned by it), matching userproc::wait's Option
/// return.
func waitForChild(callerTid, tid int) (status int, ok bool) {
	theWaitManager.mu.Lock()
	p, exists := theWaitManager.parent[tid]
	rec := theWaitManager.status[tid]
	theWaitManager.mu.Unlock()

	if !exists || p != callerTid || rec == nil {
		return 0, false
	}

	rec.sema.Down()

	theWaitManager.mu.Lock()
	delete(theWaitManager.parent, tid)
	delete(theWaitManager.status, tid)
	theWaitManager.mu.Unlock()

	return rec.status, true
}

/// recordExit records tid's exit status and wakes any parent blocked in
/// waitForChild for it. A tid with no registered record (e.g. its parent
/// already exited and cleanUpChildren removed it) exits silently.
func recordExit(tid, status int) {
	theWaitManager.mu.Lock()
	rec := theWaitManager.status[tid]
	theWaitManager.mu.Unlock()
	if rec == nil {
		return
	}
	rec.status = status
	rec.exited = true
	rec.sema.Up()
}

/// cleanUpChildren discards wait bookkeeping for every child of parent that
/// nobody ever waits for again: once a process exits, its never-waited-on
/// children become unreachable (the process lifecycle here does not model
/// reparenting to an init process), so their records would otherwise leak
/// forever.
func cleanUpChildren(parentTid int) {
	theWaitManager.mu.Lock()
	defer theWaitManager.mu.Unlock()
	var children []int
	for child, p := range theWaitManager.parent {
		if p == parentTid {
			children = append(children, child)
		}
	}
	for _, child := range children {
		delete(theWaitManager.parent, child)
		delete(theWaitManager.status, child)
	}
}
