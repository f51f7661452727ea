// ExecFromUser marshals the exec syscall's pathname and argv out of user
// memory and hands them to Execute, grounded on
// trap/syscall.rs::syscall_exec. The syscall dispatch table itself is out
// of scope (spec.md §1); this is the one piece of that bridge -- reading a
// user-space `char**` -- worth keeping, since everything downstream of it
// is this package's own business.
package proc

import (
	"defs"
	"vm"
)

/// ExecFromUser reads a NUL-terminated path and a NULL-terminated argv
/// array of string pointers out of the calling thread's address space and
/// executes it, grounded on syscall_exec.
func ExecFromUser(pathnamePtr, argvPtr int) (int, defs.Err_t) {
	pathname, err := vm.ReadString(pathnamePtr)
	if err != 0 {
		return 0, err
	}

	var argv []string
	for i := 0; ; i++ {
		ptr, err := vm.ReadDoubleword(argvPtr + i*8)
		if err != 0 {
			return 0, err
		}
		if ptr == 0 {
			break
		}
		arg, err := vm.ReadString(int(ptr))
		if err != 0 {
			return 0, err
		}
		argv = append(argv, arg)
	}

	file, ferr := Disk.Open(pathname)
	if ferr != nil {
		return 0, defs.ENOENT
	}

	return Execute(file, argv)
}
