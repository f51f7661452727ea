package vm

import (
	"unicode/utf8"

	"defs"
	"mem"
	"sched"
)

func ensureResident(t *sched.Thread, va int) defs.Err_t {
	floor := mem.Floor(va)
	if pte := t.PageTable.GetPte(floor); pte != nil && *pte&mem.PTE_P != 0 {
		return 0
	}
	return DemandPage(t, floor)
}

func markAccessed(t *sched.Thread, va int) {
	floor := mem.Floor(va)
	pte := t.PageTable.GetPte(floor)
	if pte == nil {
		return
	}
	pa := *pte & mem.PTE_ADDR
	flags := (*pte &^ mem.PTE_ADDR) | mem.PTE_A
	t.PageTable.Map(pa, floor, 1, flags)
}

// ReadByte reads one byte from the current thread's user address space,
// demand-paging it in first if necessary, grounded on
// mem/userbuf.rs::read_user_byte.
func ReadByte(va int) (byte, defs.Err_t) {
	if va <= 0 || va >= defs.USTACKTOP {
		return 0, defs.EFAULT
	}
	t := sched.Current()
	if err := ensureResident(t, va); err != 0 {
		return 0, err
	}
	pte := t.PageTable.GetPte(va)
	page := Pool.Deref(*pte & mem.PTE_ADDR)
	markAccessed(t, va)
	return page[mem.PageOff(va)], 0
}

// WriteByte writes one byte to the current thread's user address space,
// demand-paging it in first if necessary, grounded on
// mem/userbuf.rs::write_user_byte.
func WriteByte(va int, value byte) defs.Err_t {
	if va <= 0 || va >= defs.USTACKTOP {
		return defs.EFAULT
	}
	t := sched.Current()
	if err := ensureResident(t, va); err != 0 {
		return err
	}
	pte := t.PageTable.GetPte(va)
	page := Pool.Deref(*pte & mem.PTE_ADDR)
	page[mem.PageOff(va)] = value
	markAccessed(t, va)
	return 0
}

// ReadDoubleword reads an 8-byte little-endian value from user space,
// grounded on mem/userbuf.rs::read_user_doubleword.
func ReadDoubleword(va int) (uint64, defs.Err_t) {
	var v uint64
	for i := 0; i < 8; i++ {
		b, err := ReadByte(va + i)
		if err != 0 {
			return 0, err
		}
		v |= uint64(b) << (8 * i)
	}
	return v, 0
}

// WriteDoubleword writes an 8-byte little-endian value to user space,
// grounded on mem/userbuf.rs::write_user_doubleword.
func WriteDoubleword(va int, value uint64) defs.Err_t {
	for i := 0; i < 8; i++ {
		if err := WriteByte(va+i, byte(value>>(8*i))); err != 0 {
			return err
		}
	}
	return 0
}

// ReadString reads a NUL-terminated string from user space, grounded on
// mem/userbuf.rs::read_user_string. Unlike the original, which panics if
// the bytes aren't valid UTF-8, this returns EFAULT (open question 3):
// malformed user input should kill the faulting syscall, not the kernel.
func ReadString(va int) (string, defs.Err_t) {
	var buf []byte
	for i := 0; ; i++ {
		b, err := ReadByte(va + i)
		if err != 0 {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return "", defs.EFAULT
	}
	return string(buf), 0
}

// CheckBufReadable walks [start, start+length) one page at a time,
// demand-paging in every page touched, grounded on
// mem/userbuf.rs::check_buf_readable.
func CheckBufReadable(start, length int) defs.Err_t {
	if start == 0 {
		return defs.EFAULT
	}
	for va := start; va < start+length; va = mem.Floor(va) + mem.PGSIZE {
		if _, err := ReadByte(va); err != 0 {
			return err
		}
	}
	return 0
}

// CheckBufWritable walks [start, start+length) one page at a time,
// demand-paging in and round-tripping one byte per page to confirm both
// read and write access, grounded on mem/userbuf.rs::check_buf_writable.
func CheckBufWritable(start, length int) defs.Err_t {
	if start == 0 {
		return defs.EFAULT
	}
	for va := start; va < start+length; va = mem.Floor(va) + mem.PGSIZE {
		b, err := ReadByte(va)
		if err != 0 {
			return err
		}
		if err := WriteByte(va, b); err != 0 {
			return err
		}
	}
	return 0
}
