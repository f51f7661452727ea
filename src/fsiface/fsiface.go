// Package fsiface names the narrow interfaces the core consumes from
// collaborators spec.md §1 places out of scope: the on-disk filesystem and
// its File abstraction, and the console device. Kernel packages import only
// this package, never a concrete filesystem.
package fsiface

import "io"

/// File is the file abstraction the core needs: seek/read/write/len, plus
/// clone (so a second fd or a second SPTE entry can hold an independent
/// cursor onto the same underlying file) and deny-write (so an executing
/// binary cannot be modified while demand-paged, spec.md §4.H step 4).
type File interface {
	io.ReadWriteSeeker
	Len() (int, error)
	Clone() File
	DenyWrite()
	AllowWrite()
	/// Ino returns the file's inode number, for fstat.
	Ino() uint64
	Close() error
}

/// Console is the narrow interface onto console I/O (spec.md §1, §4.J):
/// reads from fd 0 and writes to fd 1/2 go here instead of to a File.
type Console interface {
	ReadByte() (byte, bool)
	Write(p []byte) (int, error)
}

/// FS is the narrow interface onto the on-disk filesystem (spec.md §1): look
/// a path up to get a File, or create one. Everything past that point --
/// content, directories, permissions -- is the filesystem's business, not
/// the core's (spec.md's Non-goals: "FS semantics beyond File").
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
}
