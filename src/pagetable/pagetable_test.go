package pagetable

import (
	"testing"

	"mem"
)

type fakePool struct{ pages map[mem.Pa_t]*mem.Bytepg_t }

func newFakePool() *fakePool { return &fakePool{pages: make(map[mem.Pa_t]*mem.Bytepg_t)} }

func (p *fakePool) Alloc() (*mem.Bytepg_t, mem.Pa_t, bool) { return nil, 0, false }
func (p *fakePool) Free(mem.Pa_t)                          {}
func (p *fakePool) Deref(pa mem.Pa_t) *mem.Bytepg_t         { return p.pages[pa] }

func TestMapAndGetPte(t *testing.T) {
	pt := New(newFakePool())
	pt.Map(0x3000, 0x1000, 1, mem.PTE_P|mem.PTE_U|mem.PTE_W)

	pte := pt.GetPte(0x1000)
	if pte == nil {
		t.Fatalf("GetPte returned nil after Map")
	}
	if *pte&mem.PTE_ADDR != 0x3000 {
		t.Errorf("mapped frame = %#x, want %#x", *pte&mem.PTE_ADDR, 0x3000)
	}
	if *pte&mem.PTE_P == 0 {
		t.Errorf("expected PTE_P set")
	}
}

func TestGetPteNilBeforeMap(t *testing.T) {
	pt := New(newFakePool())
	if pte := pt.GetPte(0x5000); pte != nil {
		t.Fatalf("GetPte on unmapped va = %v, want nil", pte)
	}
}

func TestMapMultiplePages(t *testing.T) {
	pt := New(newFakePool())
	pt.Map(0x10000, 0x2000, 3, mem.PTE_P)

	for i := 0; i < 3; i++ {
		va := 0x2000 + i*mem.PGSIZE
		pte := pt.GetPte(va)
		if pte == nil {
			t.Fatalf("page %d: GetPte returned nil", i)
		}
		want := mem.Pa_t(0x10000 + i*mem.PGSIZE)
		if *pte&mem.PTE_ADDR != want {
			t.Errorf("page %d: frame = %#x, want %#x", i, *pte&mem.PTE_ADDR, want)
		}
	}
}

func TestCloneAliasesExistingLeavesNotFutureOnes(t *testing.T) {
	pt := New(newFakePool())
	pt.Map(0x1000, 0x1000, 1, mem.PTE_P)

	clone := pt.Clone()
	if pte := clone.GetPte(0x1000); pte == nil || *pte&mem.PTE_ADDR != 0x1000 {
		t.Fatalf("clone did not see pre-existing mapping")
	}

	// A leaf created in the original after cloning should not appear in
	// the clone (different top-level region -> new leaf).
	pt.Map(0x20000, 1<<30, 1, mem.PTE_P)
	if pte := clone.GetPte(1 << 30); pte != nil {
		t.Fatalf("clone observed a leaf created after Clone")
	}
}

func TestDestroyDropsMappings(t *testing.T) {
	pt := New(newFakePool())
	pt.Map(0x1000, 0x1000, 1, mem.PTE_P)
	pt.Destroy()
	if pte := pt.GetPte(0x1000); pte != nil {
		t.Fatalf("GetPte after Destroy = %v, want nil", pte)
	}
}

func TestRemapUpdatesInPlace(t *testing.T) {
	pt := New(newFakePool())
	pt.Map(0x1000, 0x4000, 1, mem.PTE_P|mem.PTE_W)
	pt.Map(0, 0x4000, 1, mem.PTE_U) // non-resident placeholder, same va

	pte := pt.GetPte(0x4000)
	if *pte&mem.PTE_P != 0 {
		t.Errorf("expected PTE_P cleared after remap to non-resident")
	}
	if *pte&mem.PTE_U == 0 {
		t.Errorf("expected PTE_U set after remap")
	}
}
