// Package swap implements the Swap Table (spec.md §4.B): a free list of
// fixed-size slot offsets into the swap backing store, grounded on the Rust
// original's SwapTable (original_source/src/mem/swaptable.rs) and the
// general Physmem free-list shape in biscuit's mem/mem.go.
package swap

import (
	"fmt"
	"sync"

	"mem"
)

/// Disk is the narrow interface onto the swap backing store (spec.md §1:
/// block-device driver is out of scope, an external collaborator). Offsets
/// are always page-sized multiples.
type Disk interface {
	ReadAt(buf []byte, offset int64) error
	WriteAt(buf []byte, offset int64) error
}

/// Table is the free list of swap slot offsets.
type Table struct {
	mu    sync.Mutex
	free  []int64
	disk  Disk
	slots int
}

/// New builds a Table over a disk with the given number of page-sized slots.
func New(disk Disk, slots int) *Table {
	t := &Table{disk: disk, slots: slots}
	for i := 0; i < slots; i++ {
		t.free = append(t.free, int64(i*mem.PGSIZE))
	}
	return t
}

/// Alloc takes a free slot, the most recently freed one first. Running out of slots is a kernel panic
/// (spec.md §4.B): there is no reclamation beyond explicit Dealloc, and a
/// caller reaching this with no slots left has nowhere to put an evicted
/// page.
func (t *Table) Alloc() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.free) == 0 {
		panic(fmt.Sprintf("swap: out of slots (%d total)", t.slots))
	}
	off := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	return off
}

/// Dealloc returns a slot to the free list.
func (t *Table) Dealloc(offset int64) {
	t.mu.Lock()
	t.free = append(t.free, offset)
	t.mu.Unlock()
}

/// Write stores one page at the given swap offset.
func (t *Table) Write(offset int64, page *mem.Bytepg_t) error {
	return t.disk.WriteAt(page[:], offset)
}

/// Read loads one page from the given swap offset.
func (t *Table) Read(offset int64, page *mem.Bytepg_t) error {
	return t.disk.ReadAt(page[:], offset)
}

/// FreeLen reports the number of unused slots, for tests checking invariant
/// 3 of spec.md §8 (free list + in-use slots partition the device).
func (t *Table) FreeLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.free)
}
