package vm

import (
	"io"

	"defs"
	"mem"
	"sched"
	"spt"
)

// DemandPage resolves a non-resident user page at va by loading it from
// wherever its SPTE says it lives, grounded on trap/demandpaging.rs. It
// returns EFAULT if there is no SPTE at va (an unmapped address, not a
// demand-pageable one).
func DemandPage(t *sched.Thread, va int) defs.Err_t {
	floor := mem.Floor(va)
	spte, ok := t.SuppTable.Query(floor)
	if !ok {
		return defs.EFAULT
	}

	pa := Frames.AllocFrame()
	page := Pool.Deref(pa)

	existing := t.PageTable.GetPte(floor)
	flags := mem.PTE_U | mem.PTE_W | mem.PTE_X
	if existing != nil {
		flags = *existing &^ mem.PTE_ADDR
	}

	switch spte.Kind {
	case spt.InSwap:
		if err := Frames.SwapIn(spte.SwapOffset, page); err != nil {
			return defs.EIO
		}
		t.PageTable.Map(pa, floor, 1, flags|mem.PTE_P)
		Frames.Map(pa, t, floor, false)
		Frames.SwapFree(spte.SwapOffset)

	case spt.InFileLazyLoad, spt.InFileMapped:
		// Pin the frame while its contents are still being filled in, so a
		// concurrent eviction sweep can't select a half-loaded page
		// (mirrors the original mapping the frame pinned, then unpinned,
		// around the file read).
		t.PageTable.Map(pa, floor, 1, flags|mem.PTE_P)
		Frames.Map(pa, t, floor, true)

		for i := range page {
			page[i] = 0
		}
		if _, err := spte.File.Seek(int64(spte.FileOffset), io.SeekStart); err != nil {
			return defs.EIO
		}
		if _, err := io.ReadFull(spte.File, page[:spte.Len]); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return defs.EIO
		}

		Frames.Unpin(pa)
	}

	// InFileMapped keeps its SPTE even once resident (open question 2) so a
	// later eviction or munmap can still find where to write it back;
	// InSwap and InFileLazyLoad are one-shot and are removed now.
	if spte.Kind != spt.InFileMapped {
		t.SuppTable.Remove(floor)
	}
	return 0
}

// UserStackGrowth grows the calling thread's stack to cover addr, a fault
// address accessed with stack pointer sp, grounded on
// trap/stackgrowth.rs::user_stack_growth. It rejects addresses that don't
// look like a stack access, and addresses beyond the fixed stack ceiling.
func UserStackGrowth(addr, sp int) defs.Err_t {
	if addr < sp || addr > defs.USTACKTOP {
		return defs.EFAULT
	}
	if sp <= defs.USTACKTOP-defs.USTACKSIZE {
		return defs.ESTACKOVERFLOW
	}

	t := sched.Current()
	pa := Frames.AllocFrame()
	floor := mem.Floor(addr)
	t.PageTable.Map(pa, floor, 1, mem.PTE_P|mem.PTE_U|mem.PTE_W|mem.PTE_X)
	Frames.Map(pa, t, floor, false)
	return 0
}

// ExtendStackToSp eagerly maps unmapped stack pages from sp upward toward
// the stack ceiling, stopping at the first page that is already resident or
// has an SPTE, grounded on trap/stackgrowth.rs::extend_stack_to_sp. It
// exists because a syscall validating a user buffer that happens to sit on
// the stack must not take a fault mid-validation.
func ExtendStackToSp(sp int) defs.Err_t {
	if sp <= defs.USTACKTOP-defs.USTACKSIZE {
		return defs.ESTACKOVERFLOW
	}

	t := sched.Current()
	for floor := mem.Floor(sp); floor < defs.USTACKTOP; floor += mem.PGSIZE {
		pte := t.PageTable.GetPte(floor)
		_, hasSpte := t.SuppTable.Query(floor)
		if (pte != nil && *pte&mem.PTE_P != 0) || hasSpte {
			break
		}
		pa := Frames.AllocFrame()
		t.PageTable.Map(pa, floor, 1, mem.PTE_P|mem.PTE_U|mem.PTE_W|mem.PTE_X)
		Frames.Map(pa, t, floor, false)
	}
	return 0
}

// HandleFault resolves a user-mode page fault at addr taken with stack
// pointer sp: try demand paging first, fall back to stack growth, exactly
// as trap/pagefault.rs's user-privilege branch does. The caller (the
// syscall/trap dispatch this core does not own, per spec.md §1) is
// responsible for killing the faulting process if this returns an error.
func HandleFault(addr, sp int) defs.Err_t {
	floor := mem.Floor(addr)
	t := sched.Current()
	if _, ok := t.SuppTable.Query(floor); ok {
		return DemandPage(t, floor)
	}
	return UserStackGrowth(addr, sp)
}
