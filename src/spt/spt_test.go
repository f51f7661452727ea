package spt

import "testing"

func TestInsertSwapQueryRemove(t *testing.T) {
	tbl := New()
	tbl.InsertSwap(0x1000, 42)

	e, ok := tbl.Query(0x1000)
	if !ok {
		t.Fatalf("Query after InsertSwap: not found")
	}
	if e.Kind != InSwap || e.SwapOffset != 42 {
		t.Fatalf("Query = %+v, want Kind=InSwap SwapOffset=42", e)
	}

	tbl.Remove(0x1000)
	if _, ok := tbl.Query(0x1000); ok {
		t.Fatalf("Query after Remove still found an entry")
	}
}

func TestQueryFloorsTheAddress(t *testing.T) {
	tbl := New()
	tbl.InsertSwap(0x1000, 7)

	if _, ok := tbl.Query(0x1000 + 123); !ok {
		t.Fatalf("Query(va within the same page) should find the page's entry")
	}
}

func TestInsertOverwritesPriorEntry(t *testing.T) {
	tbl := New()
	tbl.InsertSwap(0x2000, 1)
	tbl.InsertFileLazyLoad(0x2000, nil, 0, 100)

	e, ok := tbl.Query(0x2000)
	if !ok || e.Kind != InFileLazyLoad {
		t.Fatalf("second Insert should overwrite the first entry, got %+v", e)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (overwrite, not append)", tbl.Len())
	}
}

func TestFileMappedRetainedDistinctFromLazyLoad(t *testing.T) {
	tbl := New()
	tbl.InsertFileMapped(0x3000, nil, 10, 200)

	e, ok := tbl.Query(0x3000)
	if !ok {
		t.Fatalf("Query: not found")
	}
	if e.Kind != InFileMapped || e.FileOffset != 10 || e.Len != 200 {
		t.Fatalf("Query = %+v, want Kind=InFileMapped FileOffset=10 Len=200", e)
	}
}

func TestLenTracksLiveEntries(t *testing.T) {
	tbl := New()
	if tbl.Len() != 0 {
		t.Fatalf("Len() on empty table = %d, want 0", tbl.Len())
	}
	tbl.InsertSwap(0x1000, 1)
	tbl.InsertSwap(0x2000, 2)
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	tbl.Remove(0x1000)
	if tbl.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", tbl.Len())
	}
}
