package mem

import (
	"sync"
	"unsafe"
)

// Kernel heap glue (spec.md §4.L). Thread stacks are the only kernel-heap
// consumer in this core (page-table leaves are ordinary Go allocations, see
// package pagetable); they want page-aligned, page-sized-or-larger
// allocations, so kalloc/kfree are thin
// wrappers over a Page_i rather than a general-purpose allocator, exactly as
// biscuit's kalloc/kfree wrap Physmem.

/// Heap is the global Page_i used for kalloc/kfree. A real boot sequence
/// installs it once; tests install their own mem.Heap = mem.NewPool(n).
var Heap Page_i

var (
	allocMu sync.Mutex
	allocs  = map[uintptr][]Pa_t{}
)

/// Kalloc allocates size bytes aligned to align, rounded up to whole pages.
/// It panics if size/align describe something other than a page multiple,
/// mirroring biscuit's assumption that kalloc only ever serves page-sized
/// kernel objects (thread stacks, page-table pages). The frames backing the
/// returned slice are recorded so a matching Kfree can return them to Heap.
func Kalloc(size, align int) []byte {
	if align > PGSIZE || PGSIZE%align != 0 {
		panic("mem: kalloc: unsupported alignment")
	}
	if size <= 0 || size%PGSIZE != 0 {
		panic("mem: kalloc: size must be a positive multiple of PGSIZE")
	}
	npg := size / PGSIZE
	buf := make([]byte, 0, size)
	pas := make([]Pa_t, 0, npg)
	for i := 0; i < npg; i++ {
		pg, pa, ok := Heap.Alloc()
		if !ok {
			panic("mem: kalloc: out of memory")
		}
		buf = append(buf, pg[:]...)
		pas = append(pas, pa)
	}

	allocMu.Lock()
	allocs[uintptr(unsafe.Pointer(&buf[0]))] = pas
	allocMu.Unlock()
	return buf
}

/// Kfree returns the frames backing buf to Heap. buf must be a slice
/// previously returned by Kalloc with the same size/align and not already
/// freed; it panics otherwise, the same way Pool.Free panics on an unknown
/// frame.
func Kfree(buf []byte, size, align int) {
	_ = align
	if len(buf) == 0 {
		return
	}
	key := uintptr(unsafe.Pointer(&buf[0]))

	allocMu.Lock()
	pas, ok := allocs[key]
	if ok {
		delete(allocs, key)
	}
	allocMu.Unlock()

	if !ok {
		panic("mem: kfree: buf was not allocated by Kalloc, or already freed")
	}
	if size/PGSIZE != len(pas) {
		panic("mem: kfree: size does not match the original Kalloc")
	}
	for _, pa := range pas {
		Heap.Free(pa)
	}
}
