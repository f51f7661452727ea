// Package spt implements the Supplementary Page Table (spec.md §4.C): the
// per-process map from non-resident virtual page to its backing store,
// grounded on the Rust original's SupPageTable
// (original_source/src/mem/suppagetable.rs).
package spt

import (
	"sync"

	"fsiface"
	"mem"
)

/// Kind discriminates the three SPTE variants (spec.md §3).
type Kind int

const (
	InSwap Kind = iota
	InFileLazyLoad
	InFileMapped
)

/// Entry is a supplementary page table entry. Only the fields relevant to
/// Kind are meaningful; File/FileOffset/Len are zero for InSwap, SwapOffset
/// is zero for the file-backed kinds.
type Entry struct {
	Kind       Kind
	SwapOffset int64
	File       fsiface.File
	FileOffset int
	Len        int /// valid byte count; remainder of the page is zero-filled
}

/// Table is a process's supplementary page table: a map keyed by
/// page-aligned VA (with no defined iteration order), guarded by a mutex that, on real hardware, would also disable interrupts
/// (spec.md §4.C) -- here the mutex alone gives the same mutual exclusion
/// since blocking primitives already model "interrupts disabled" via
/// goroutine scheduling (see ksync).
type Table struct {
	mu      sync.Mutex
	entries map[int]Entry
}

/// New creates an empty supplementary page table.
func New() *Table {
	return &Table{entries: make(map[int]Entry)}
}

func floor(va int) int { return mem.Floor(va) }

/// InsertSwap records that the page at va (need not be page-aligned; it is
/// floored) now lives in the swap slot at offset.
func (t *Table) InsertSwap(va int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[floor(va)] = Entry{Kind: InSwap, SwapOffset: offset}
}

/// InsertFileLazyLoad records an ELF-segment-backed page: the first fault
/// reads Len bytes from File at FileOffset and zero-fills the rest; a
/// writable page becomes anonymous (dirty-on-first-write, never written
/// back) thereafter -- the entry is removed once the page is resident
/// (spec.md §3).
func (t *Table) InsertFileLazyLoad(va int, file fsiface.File, fileOffset, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[floor(va)] = Entry{Kind: InFileLazyLoad, File: file, FileOffset: fileOffset, Len: length}
}

/// InsertFileMapped records an mmap-backed page: dirty pages write back to
/// File on unmap. Unlike InFileLazyLoad, this entry is retained across
/// eviction (see DESIGN.md open question 2) so a later eviction or the final
/// munmap can still find where to flush it.
func (t *Table) InsertFileMapped(va int, file fsiface.File, fileOffset, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[floor(va)] = Entry{Kind: InFileMapped, File: file, FileOffset: fileOffset, Len: length}
}

/// Remove deletes any SPTE at va.
func (t *Table) Remove(va int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, floor(va))
}

/// Query returns a copy of the SPTE at va, if any.
func (t *Table) Query(va int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[floor(va)]
	return e, ok
}

/// Len reports the number of live SPTEs, used by invariant checks in tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
