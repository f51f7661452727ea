package frame

import (
	"io"
	"testing"

	"fsiface"
	"mem"
	"pagetable"
	"sched"
	"spt"
	"swap"
)

type fakeDisk struct{ data map[int64][]byte }

func newFakeDisk() *fakeDisk { return &fakeDisk{data: make(map[int64][]byte)} }

func (d *fakeDisk) ReadAt(buf []byte, offset int64) error {
	if src, ok := d.data[offset]; ok {
		copy(buf, src)
	}
	return nil
}

func (d *fakeDisk) WriteAt(buf []byte, offset int64) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.data[offset] = cp
	return nil
}

type fakeFile struct {
	data []byte
	pos  int64
}

func (f *fakeFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(len(f.data)) + offset
	}
	return f.pos, nil
}

func (f *fakeFile) Len() (int, error)     { return len(f.data), nil }
func (f *fakeFile) Clone() fsiface.File   { return f }
func (f *fakeFile) DenyWrite()            {}
func (f *fakeFile) AllowWrite()           {}
func (f *fakeFile) Ino() uint64           { return 7 }
func (f *fakeFile) Close() error          { return nil }

func newTestThread(pool mem.Page_i) *sched.Thread {
	th := sched.Init("test")
	th.PageTable = pagetable.New(pool)
	th.SuppTable = spt.New()
	return th
}

func TestMapUpdatesFrameInPlace(t *testing.T) {
	pool := mem.NewPool(4)
	ft := New(pool, swap.New(newFakeDisk(), 4))
	th := newTestThread(pool)

	ft.Map(0x1000, th, 0x2000, false)
	ft.Map(0x1000, th, 0x3000, true)

	if ft.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after remapping the same frame", ft.Len())
	}
}

func TestCleanupFreesOwnedFrames(t *testing.T) {
	pool := mem.NewPool(4)
	ft := New(pool, swap.New(newFakeDisk(), 4))
	th := newTestThread(pool)
	other := newTestThread(pool)

	_, pa, _ := pool.Alloc()
	ft.Map(pa, th, 0x1000, false)
	_, pa2, _ := pool.Alloc()
	ft.Map(pa2, other, 0x1000, false)

	before := pool.Free_len()
	ft.Cleanup(th)

	if ft.Len() != 1 {
		t.Fatalf("Len() after Cleanup = %d, want 1 (other thread's entry kept)", ft.Len())
	}
	if pool.Free_len() != before+1 {
		t.Fatalf("Free_len() = %d, want %d (th's frame returned to the pool)", pool.Free_len(), before+1)
	}
}

func TestAllocFrameEvictsWhenPoolExhausted(t *testing.T) {
	pool := mem.NewPool(1)
	ft := New(pool, swap.New(newFakeDisk(), 4))
	th := newTestThread(pool)

	_, pa, ok := pool.Alloc()
	if !ok {
		t.Fatalf("setup: pool.Alloc failed")
	}
	th.PageTable.Map(pa, 0x4000, 1, mem.PTE_P|mem.PTE_W|mem.PTE_U)
	ft.Map(pa, th, 0x4000, false)

	got := ft.AllocFrame()
	if got != pa {
		t.Fatalf("AllocFrame() = %#x, want the evicted frame %#x reused", got, pa)
	}

	spte, ok := th.SuppTable.Query(0x4000)
	if !ok || spte.Kind != spt.InSwap {
		t.Fatalf("evicted page's SPTE = %+v, want Kind=InSwap", spte)
	}
	if pte := th.PageTable.GetPte(0x4000); pte == nil || *pte&mem.PTE_P != 0 {
		t.Fatalf("evicted page's PTE still marked present")
	}
}

func TestPinnedEntryIsNeverSelectedForEviction(t *testing.T) {
	pool := mem.NewPool(2)
	ft := New(pool, swap.New(newFakeDisk(), 4))
	th := newTestThread(pool)

	_, pinnedPa, _ := pool.Alloc()
	th.PageTable.Map(pinnedPa, 0x4000, 1, mem.PTE_P|mem.PTE_U)
	ft.Map(pinnedPa, th, 0x4000, true)

	_, victimPa, _ := pool.Alloc()
	th.PageTable.Map(victimPa, 0x5000, 1, mem.PTE_P|mem.PTE_U)
	ft.Map(victimPa, th, 0x5000, false)

	// Force eviction: no free frames left in the pool.
	got := ft.AllocFrame()
	if got != victimPa {
		t.Fatalf("AllocFrame() evicted %#x, want the unpinned victim %#x", got, victimPa)
	}
	if pte := th.PageTable.GetPte(0x4000); pte == nil || *pte&mem.PTE_P == 0 {
		t.Fatalf("pinned entry was evicted")
	}
}

func TestEvictionGivesAccessedPagesASecondChance(t *testing.T) {
	pool := mem.NewPool(1)
	ft := New(pool, swap.New(newFakeDisk(), 4))
	th := newTestThread(pool)

	_, pa, _ := pool.Alloc()
	th.PageTable.Map(pa, 0x6000, 1, mem.PTE_P|mem.PTE_U|mem.PTE_A)
	ft.Map(pa, th, 0x6000, false)

	// First pass over the single entry clears PTE_A instead of evicting;
	// the second pass (same entry, ring wrapped) evicts it.
	got := ft.AllocFrame()
	if got != pa {
		t.Fatalf("AllocFrame() = %#x, want %#x evicted on its second pass", got, pa)
	}
}

func TestEvictionWritesInFileMappedPagesBackInsteadOfSwap(t *testing.T) {
	pool := mem.NewPool(1)
	disk := newFakeDisk()
	ft := New(pool, swap.New(disk, 4))
	th := newTestThread(pool)
	file := &fakeFile{data: make([]byte, mem.PGSIZE)}

	_, pa, _ := pool.Alloc()
	page := pool.Deref(pa)
	for i := range page {
		page[i] = 0xAB
	}
	th.PageTable.Map(pa, 0x7000, 1, mem.PTE_P|mem.PTE_U|mem.PTE_W|mem.PTE_D)
	th.SuppTable.InsertFileMapped(0x7000, file, 0, mem.PGSIZE)
	ft.Map(pa, th, 0x7000, false)

	ft.AllocFrame()

	for i, b := range file.data {
		if b != 0xAB {
			t.Fatalf("file.data[%d] = %#x, want 0xAB (evicted page written back)", i, b)
		}
	}
	spte, ok := th.SuppTable.Query(0x7000)
	if !ok || spte.Kind != spt.InFileMapped {
		t.Fatalf("InFileMapped SPTE was dropped by eviction, got %+v ok=%v", spte, ok)
	}
}
