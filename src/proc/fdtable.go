// Package proc implements the user process lifecycle (spec.md §4.H: ELF
// load, demand-paged exec, wait/exit) and the per-process file descriptor
// and mmap tables (spec.md §4.J), grounded on the Rust original's
// userproc.rs, userproc/{wait,load,fileop}.rs and
// userproc/fileop/{fdtable,mmaptable}.rs.
package proc

import (
	"sync"

	"fsiface"
)

type fdEntry struct {
	file  fsiface.File
	flags int
}

/// FDTable is a process's file descriptor table: fds 0/1/2 are the console
/// and are only ever open or closed, fds 3+ are ordinary files allocated at
/// the smallest unused integer, grounded on userproc/fileop/fdtable.rs.
type FDTable struct {
	mu     sync.Mutex
	stdfd  [3]bool
	userfd map[int]fdEntry
}

/// NewFDTable creates a table with stdin/stdout/stderr open and no user
/// files.
func NewFDTable() *FDTable {
	return &FDTable{stdfd: [3]bool{true, true, true}, userfd: make(map[int]fdEntry)}
}

/// AllocFd installs file under the smallest fd not already in use (always
/// >= 3; 0-2 are reserved for the console) and returns it.
func (t *FDTable) AllocFd(file fsiface.File, flags int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := 3
	for {
		if _, ok := t.userfd[fd]; !ok {
			break
		}
		fd++
	}
	t.userfd[fd] = fdEntry{file: file, flags: flags}
	return fd
}

/// FdToFile returns the file and open flags behind fd, for fds >= 3.
func (t *FDTable) FdToFile(fd int) (fsiface.File, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.userfd[fd]
	return e.file, e.flags, ok
}

/// IsStdOpen reports whether stdio descriptor fd (0, 1, or 2) is still open.
func (t *FDTable) IsStdOpen(fd int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd > 2 {
		return false
	}
	return t.stdfd[fd]
}

/// CloseFd closes fd, whether stdio or a user file, returning the closed
/// file (if any) so the caller can release it.
func (t *FDTable) CloseFd(fd int) (fsiface.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd >= 0 && fd < 3 {
		t.stdfd[fd] = false
		return nil, false
	}
	e, ok := t.userfd[fd]
	delete(t.userfd, fd)
	return e.file, ok
}
