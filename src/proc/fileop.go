// File descriptor syscalls (open/read/write/close/seek/tell/fstat) and
// mmap/munmap, grounded on the Rust original's userproc/fileop.rs. The
// concrete disk filesystem and console device are out-of-scope external
// collaborators (spec.md §1); this package reaches them only through
// fsiface.FS and fsiface.Console.
package proc

import (
	"io"

	"defs"
	"fsiface"
	"mem"
	"sched"
	"vm"
)

// Disk and Console are the narrow external collaborators file syscalls
// need: look up/create files by path, and read from / write to the
// console device. Installed once during boot/test setup, the same
// singleton pattern as vm.Frames/vm.Pool.
var (
	Disk    fsiface.FS
	Console fsiface.Console
)

// isReadonly reports whether flags' access-mode bits name O_RDONLY,
// special-cased because that mode is value 0 (fileop.rs::is_readonly).
func isReadonly(flags int) bool {
	return flags&0b11 == defs.O_RDONLY
}

// Open looks path up on Disk, creating it if O_CREATE is set and it does
// not already exist, and installs it in the calling thread's fd table,
// grounded on fileop.rs::open.
func Open(path string, flags int) (int, defs.Err_t) {
	accessMode := flags & (defs.O_RDONLY | defs.O_WRONLY | defs.O_RDWR)
	if accessMode != defs.O_RDONLY && accessMode != defs.O_WRONLY && accessMode != defs.O_RDWR {
		return 0, defs.EINVAL
	}

	file, err := Disk.Open(path)
	if err != nil {
		if flags&defs.O_CREATE == 0 {
			return 0, defs.ENOENT
		}
		file, err = Disk.Create(path)
		if err != nil {
			return 0, defs.ENOENT
		}
	} else if flags&defs.O_TRUNC != 0 {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return 0, defs.EIO
		}
	}

	up := userProcOf(sched.Current())
	return up.Fds.AllocFd(file, flags), 0
}

// Read reads from fd into buf: fd 0 reads from the console byte by byte
// until it runs dry or buf fills, anything else reads from its backing
// file (rejecting a write-only fd), grounded on fileop.rs::read.
func Read(fd int, buf []byte) (int, defs.Err_t) {
	if fd == 0 {
		n := 0
		for n < len(buf) {
			c, ok := Console.ReadByte()
			if !ok {
				break
			}
			buf[n] = c
			n++
		}
		return n, 0
	}

	up := userProcOf(sched.Current())
	file, flags, ok := up.Fds.FdToFile(fd)
	if !ok {
		return 0, defs.EFILENOTOPEN
	}
	if flags&defs.O_WRONLY != 0 {
		return 0, defs.EINVAL
	}
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return 0, defs.EIO
	}
	return n, 0
}

// Write writes buf to fd: fds 1 and 2 go to the console, anything else
// writes to its backing file (rejecting a read-only fd), grounded on
// fileop.rs::write.
func Write(fd int, buf []byte) (int, defs.Err_t) {
	if fd == 1 || fd == 2 {
		n, err := Console.Write(buf)
		if err != nil {
			return 0, defs.EIO
		}
		return n, 0
	}

	up := userProcOf(sched.Current())
	file, flags, ok := up.Fds.FdToFile(fd)
	if !ok {
		return 0, defs.EFILENOTOPEN
	}
	if isReadonly(flags) {
		return 0, defs.EINVAL
	}
	n, err := file.Write(buf)
	if err != nil {
		return 0, defs.EIO
	}
	return n, 0
}

// Close closes fd, grounded on fileop.rs::close: a user fd (>= 3) must
// still be open, and its underlying file is closed before the fd table
// entry is dropped; a stdio fd is just marked closed.
func Close(fd int) defs.Err_t {
	up := userProcOf(sched.Current())
	if fd >= 3 {
		file, _, ok := up.Fds.FdToFile(fd)
		if !ok {
			return defs.EFILENOTOPEN
		}
		file.Close()
	}
	up.Fds.CloseFd(fd)
	return 0
}

// Seek moves fd's cursor to an absolute byte offset, grounded on
// fileop.rs::seek.
func Seek(fd int, pos int) (int, defs.Err_t) {
	up := userProcOf(sched.Current())
	file, _, ok := up.Fds.FdToFile(fd)
	if !ok {
		return 0, defs.EFILENOTOPEN
	}
	newPos, err := file.Seek(int64(pos), io.SeekStart)
	if err != nil {
		return 0, defs.EIO
	}
	return int(newPos), 0
}

// Tell reports fd's current byte offset, grounded on fileop.rs::tell.
func Tell(fd int) (int, defs.Err_t) {
	up := userProcOf(sched.Current())
	file, _, ok := up.Fds.FdToFile(fd)
	if !ok {
		return 0, defs.EFILENOTOPEN
	}
	pos, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, defs.EIO
	}
	return int(pos), 0
}

// Fstat writes fd's inode number and length, as two little-endian
// doublewords, to statPtr and statPtr+8 in the calling thread's address
// space, grounded on fileop.rs::fstat.
func Fstat(fd int, statPtr int) defs.Err_t {
	up := userProcOf(sched.Current())
	file, _, ok := up.Fds.FdToFile(fd)
	if !ok {
		return defs.EFILENOTOPEN
	}
	if err := vm.WriteDoubleword(statPtr, file.Ino()); err != 0 {
		return err
	}
	length, ferr := file.Len()
	if ferr != nil {
		return defs.EIO
	}
	return vm.WriteDoubleword(statPtr+8, uint64(length))
}

// mmapRangeFree reports whether every page in [start, start+length) is
// both non-resident and free of a supplementary page table entry, the
// precondition mmap requires so it never silently clobbers an existing
// mapping, grounded on fileop.rs::mmap's inner check closure.
func mmapRangeFree(t *sched.Thread, start, length int) bool {
	if start%mem.PGSIZE != 0 {
		return false
	}
	for pos := start; pos < start+length; pos += mem.PGSIZE {
		if pte := t.PageTable.GetPte(pos); pte != nil && *pte&mem.PTE_P != 0 {
			return false
		}
		if _, ok := t.SuppTable.Query(pos); ok {
			return false
		}
	}
	return true
}

// Mmap maps fd's entire contents into the calling process's address space
// starting at addr, returning a mapid identifying the mapping, grounded on
// fileop.rs::mmap. Pages are installed lazily as InFileMapped entries, the
// way an ELF segment's pages are installed as InFileLazyLoad entries; the
// first touch demand-pages them in.
func Mmap(fd int, addr int) (int, defs.Err_t) {
	if fd < 3 || addr == 0 {
		return 0, defs.EINVAL
	}

	t := sched.Current()
	up := userProcOf(t)
	file, _, ok := up.Fds.FdToFile(fd)
	if !ok {
		return 0, defs.EFILENOTOPEN
	}

	length, err := file.Len()
	if err != nil {
		return 0, defs.EIO
	}
	if length == 0 || !mmapRangeFree(t, addr, length) {
		return 0, defs.EINVAL
	}

	mapFile := file.Clone()
	for pos := addr; pos < addr+length; pos += mem.PGSIZE {
		readsz := mem.PGSIZE
		if addr+length-pos < readsz {
			readsz = addr + length - pos
		}
		t.PageTable.Map(0, pos, 1, mem.PTE_U|mem.PTE_W)
		t.SuppTable.InsertFileMapped(pos, mapFile.Clone(), pos-addr, readsz)
	}

	return up.Mmaps.AllocMapid(fd, addr, length), 0
}

// Munmap writes every dirty resident page of mapid's range back to its
// file and tears down its mappings, grounded on fileop.rs::munmap.
func Munmap(mapid int) defs.Err_t {
	t := sched.Current()
	up := userProcOf(t)
	fd, start, length, ok := up.Mmaps.Query(mapid)
	if !ok {
		return defs.EBADMAPID
	}

	file, _, ok := up.Fds.FdToFile(fd)
	if !ok {
		return defs.EFILENOTOPEN
	}
	file = file.Clone()

	for pos := start; pos < start+length; pos += mem.PGSIZE {
		writesz := mem.PGSIZE
		if start+length-pos < writesz {
			writesz = start + length - pos
		}
		if pte := t.PageTable.GetPte(pos); pte != nil && *pte&mem.PTE_P != 0 && *pte&mem.PTE_D != 0 {
			pa := *pte & mem.PTE_ADDR
			page := vm.Frames.Deref(pa)
			if _, err := file.Seek(int64(pos-start), io.SeekStart); err != nil {
				return defs.EIO
			}
			if _, err := file.Write(page[:writesz]); err != nil {
				return defs.EIO
			}
		}
		t.PageTable.Map(0, pos, 1, 0)
		t.SuppTable.Remove(pos)
	}

	up.Mmaps.Unmap(mapid)
	return 0
}
