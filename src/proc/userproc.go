// UserProc ties a user process's file, page tables, and per-process
// tables to the kernel thread running it, and implements exec/exit/wait,
// grounded on the Rust original's userproc.rs.
package proc

import (
	"defs"
	"fsiface"
	"pagetable"
	"sched"
	"spt"
	"vm"
)

/// KernelPageTable is the kernel's own page table, whose leaf tables every
/// user page table clones by reference (spec.md §4.D) so a syscall never
/// needs to switch page tables. Installed once during boot/test setup, the
/// same pattern as vm.Frames/vm.Pool.
var KernelPageTable *pagetable.PageTable_t

/// UserProc is the user-process state attached to a kernel thread via
/// Thread.User, grounded on userproc.rs::UserProc.
type UserProc struct {
	bin fsiface.File

	Fds   *FDTable
	Mmaps *MmapTable
}

func userProcOf(t *sched.Thread) *UserProc {
	up, _ := t.User.(*UserProc)
	return up
}

/// Execute loads file as a fresh user process with the given argument
/// vector and spawns a thread to run it, returning the new thread's tid.
/// Grounded on userproc.rs::execute.
func Execute(file fsiface.File, argv []string) (tid int, rerr defs.Err_t) {
	pt := KernelPageTable.Clone()
	suppt := spt.New()

	loaded := false
	defer func() {
		if !loaded {
			pt.Destroy()
		}
	}()

	img, stackPa, stackVa, loadErr := loadExecutable(file, pt, suppt, argv)
	if loadErr != 0 {
		return 0, loadErr
	}
	loaded = true

	up := &UserProc{
		bin:   file,
		Fds:   NewFDTable(),
		Mmaps: NewMmapTable(),
	}

	entry, sp, argc := img.entryPoint, img.initSp, len(argv)
	child := sched.Spawn("user", sched.PriDefault, func() {
		runUser(entry, sp, argc)
	})
	child.PageTable = pt
	child.SuppTable = suppt
	child.User = up

	// The stack frame was allocated before the child thread existed, so its
	// frame table ownership is only registered now (userproc.rs::execute
	// does the same: FrameTable::map happens after Builder::spawn).
	vm.Frames.Map(stackPa, child, stackVa, false)

	RegisterChild(child.Id(), sched.Current().Id())

	return child.Id(), 0
}

/// runUser is the body of a freshly spawned user thread: in a hosted
/// simulation there is no trap frame to assemble and jump into (spec.md
/// §1 places trap plumbing out of scope), so this stands in for
/// userproc.rs::start as the thread's entry point. It is left for a
/// syscall-dispatch collaborator to drive further; this core's job ends at
/// having the process's address space and initial register image ready.
func runUser(entryPoint, initSp, argc int) {
}

/// Exit tears down the calling thread's user process: wakes any parent
/// blocked in Wait, releases its frames, and terminates the thread.
/// Grounded on userproc.rs::exit. Panics if the calling thread is not
/// running a user process.
func Exit(status int) {
	t := sched.Current()
	if userProcOf(t) == nil {
		panic("proc: Exit called by a thread with no user process")
	}

	cleanUpChildren(t.Id())
	recordExit(t.Id(), status)
	vm.Frames.Cleanup(t)
	sched.Exit()
}

/// Wait blocks the calling thread until child tid (which must be a child
/// of the caller) exits, returning its exit status. ok is false if tid
/// never named a child of the caller.
func Wait(tid int) (int, bool) {
	return waitForChild(sched.Current().Id(), tid)
}
