// Package vm implements demand paging, stack growth, and page-fault
// handling (spec.md §4.I) and the user-memory access helpers built on top
// of them (spec.md §4.K), grounded on the Rust original's
// trap/{demandpaging,pagefault,stackgrowth}.rs and mem/userbuf.rs.
//
// The original reaches user memory through a handful of hand-written
// RISC-V instructions (__knrl_read_usr_byte / __knrl_write_usr_byte) that
// the trap handler recognizes by program counter and treats as a soft
// page-fault trigger; that trap plumbing is out of scope here (spec.md
// §1). In its place, ReadByte/WriteByte look up the page table directly
// and call into demand paging themselves when a page is not yet resident,
// which gives the same "fault, resolve, retry" behavior without needing a
// real trap.
package vm

import (
	"frame"
	"mem"
)

// Frames and Pool are the kernel's singleton frame table and physical
// frame pool, installed once during boot/test setup -- the same pattern
// mem.Heap uses for the kernel allocator.
var (
	Frames *frame.Table
	Pool   mem.Page_i
)
