// Package frame implements the Frame Table and clock/second-chance eviction
// policy (spec.md §4.A), grounded on the Rust original's
// mem/frametable.rs. One FTE exists per user physical frame currently
// mapped into some process (spec.md §3); eviction write back goes through
// swap.Table and records the new location in the evicted thread's spt.Table.
package frame

import (
	"fmt"
	"sync"

	"mem"
	"sched"
	"spt"
	"swap"
)

/// Entry is a Frame Table Entry: which user frame is mapped where, by whom,
/// and whether it is pinned against eviction while a fault handler is
/// still filling its contents.
type Entry struct {
	FramePa mem.Pa_t
	Thread  *sched.Thread
	Va      int
	Pinned  bool
}

/// Table is the kernel's single frame table, tracking every resident user
/// frame across all processes.
type Table struct {
	mu      sync.Mutex
	pool    mem.Page_i
	swapTbl *swap.Table
	entries []*Entry
	head    int
}

/// New creates a frame table over the given user frame pool and swap table.
func New(pool mem.Page_i, swapTbl *swap.Table) *Table {
	return &Table{pool: pool, swapTbl: swapTbl}
}

/// Map registers (or updates) the FTE for frame pa, keyed by physical frame
/// so that re-mapping an already-tracked frame updates it in place rather
/// than creating a duplicate entry (spec.md §3's "one FTE per frame"
/// invariant).
func (t *Table) Map(pa mem.Pa_t, thread *sched.Thread, va int, pinned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.FramePa == pa {
			e.Thread, e.Va, e.Pinned = thread, va, pinned
			return
		}
	}
	t.entries = append(t.entries, &Entry{FramePa: pa, Thread: thread, Va: va, Pinned: pinned})
}

/// Unpin clears the pinned flag on frame pa's FTE, if one exists, allowing
/// it to be considered for eviction again.
func (t *Table) Unpin(pa mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.FramePa == pa {
			e.Pinned = false
			return
		}
	}
}

/// Cleanup removes every FTE owned by thread and returns its frames to the
/// pool, called when a user process exits (spec.md §4.H).
func (t *Table) Cleanup(thread *sched.Thread) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.Thread == thread {
			t.pool.Free(e.FramePa)
		} else {
			kept = append(kept, e)
		}
	}
	t.entries = kept
	if t.head >= len(t.entries) {
		t.head = 0
	}
}

/// Len reports the number of live FTEs, for invariant tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

/// AllocFrame returns a free user physical frame, evicting a resident page
/// via the clock algorithm if the pool is exhausted.
func (t *Table) AllocFrame() mem.Pa_t {
	if _, pa, ok := t.pool.Alloc(); ok {
		return pa
	}
	return t.selectAndEvict()
}

/// SwapIn reads a swapped-out page back into memory on the caller's behalf,
/// keeping the swap table private to this package the way it owns eviction.
func (t *Table) SwapIn(offset int64, page *mem.Bytepg_t) error {
	return t.swapTbl.Read(offset, page)
}

/// SwapFree releases a swap slot once its page has been demand-paged back
/// in.
func (t *Table) SwapFree(offset int64) {
	t.swapTbl.Dealloc(offset)
}

/// Deref exposes the frame pool's page-bytes accessor, for callers (vm's
/// user-memory helpers) that need to read or write a resident frame's
/// contents directly.
func (t *Table) Deref(pa mem.Pa_t) *mem.Bytepg_t {
	return t.pool.Deref(pa)
}

func isAccessed(e *Entry) bool {
	pte := e.Thread.PageTable.GetPte(e.Va)
	return pte != nil && *pte&mem.PTE_A != 0
}

func clearAccessed(e *Entry) {
	pte := e.Thread.PageTable.GetPte(e.Va)
	if pte == nil {
		return
	}
	frame := *pte & mem.PTE_ADDR
	flags := (*pte &^ mem.PTE_ADDR) &^ mem.PTE_A
	e.Thread.PageTable.Map(frame, e.Va, 1, flags)
}

/// selectAndEvict runs the clock (second-chance) algorithm over resident
/// frames: skip pinned entries, give accessed entries a second chance by
/// clearing their accessed bit, and evict the first entry found both
/// unpinned and not accessed. The evicted frame's contents go to swap and
/// its owner's supplementary page table gains an InSwap entry; the frame
/// itself is returned directly for immediate reuse (not pushed through the
/// free pool), matching the original's ft.remove(index).frame.
func (t *Table) selectAndEvict() mem.Pa_t {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) == 0 {
		panic("frame: out of user frames and nothing to evict")
	}
	if t.head >= len(t.entries) {
		t.head = 0
	}

	for {
		e := t.entries[t.head]

		if e.Pinned {
			t.head = (t.head + 1) % len(t.entries)
			continue
		}

		if isAccessed(e) {
			clearAccessed(e)
			t.head = (t.head + 1) % len(t.entries)
			continue
		}

		return t.evict(e)
	}
}

// evict removes e's frame from the page table and preserves its contents,
// then drops e from the ring. A page retained from an InFileMapped SPTE
// (see the package comment and DESIGN.md open question 2) writes back to
// its file and keeps that SPTE, since the file already tells a later fault
// where to reload it from; everything else goes to a fresh swap slot.
func (t *Table) evict(e *Entry) mem.Pa_t {
	pte := e.Thread.PageTable.GetPte(e.Va)
	var flags mem.Pa_t
	if pte != nil {
		flags = (*pte &^ mem.PTE_ADDR) &^ mem.PTE_P
	}
	e.Thread.PageTable.Map(0, e.Va, 1, flags)

	if spte, ok := e.Thread.SuppTable.Query(e.Va); ok && spte.Kind == spt.InFileMapped {
		if err := t.WriteBack(e.FramePa, spte); err != nil {
			panic(fmt.Sprintf("frame: mmap write-back failed during eviction: %v", err))
		}
	} else {
		page := t.pool.Deref(e.FramePa)
		offset := t.swapTbl.Alloc()
		if err := t.swapTbl.Write(offset, page); err != nil {
			panic(fmt.Sprintf("frame: swap write failed during eviction: %v", err))
		}
		e.Thread.SuppTable.InsertSwap(e.Va, offset)
	}

	frame := e.FramePa
	idx := t.head
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	t.head %= max(1, len(t.entries))
	return frame
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

/// WriteBack flushes an InFileMapped page's contents back to its file. evict
/// calls it for every mapped page it selects, dirty or not; proc.Munmap
/// writes its dirty pages back itself rather than through this method.
func (t *Table) WriteBack(pa mem.Pa_t, e spt.Entry) error {
	page := t.pool.Deref(pa)
	if _, err := e.File.Seek(int64(e.FileOffset), 0); err != nil {
		return err
	}
	_, err := e.File.Write(page[:e.Len])
	return err
}
