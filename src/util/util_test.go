package util

import "testing"

func TestMinMax(t *testing.T) {
	if Min(3, 7) != 3 {
		t.Fatalf("Min(3, 7) = %d, want 3", Min(3, 7))
	}
	if Max(3, 7) != 7 {
		t.Fatalf("Max(3, 7) = %d, want 7", Max(3, 7))
	}
	if Min(5, 5) != 5 || Max(5, 5) != 5 {
		t.Fatalf("Min/Max on equal values should return that value")
	}
}

func TestRounddownRoundup(t *testing.T) {
	cases := []struct{ v, b, down, up int }{
		{0, 8, 0, 0},
		{1, 8, 0, 8},
		{8, 8, 8, 8},
		{9, 8, 8, 16},
		{4095, 4096, 0, 4096},
		{4096, 4096, 4096, 4096},
	}
	for _, c := range cases {
		if got := Rounddown(c.v, c.b); got != c.down {
			t.Errorf("Rounddown(%d, %d) = %d, want %d", c.v, c.b, got, c.down)
		}
		if got := Roundup(c.v, c.b); got != c.up {
			t.Errorf("Roundup(%d, %d) = %d, want %d", c.v, c.b, got, c.up)
		}
	}
}

func TestReadnWritenRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	Writen(buf, 8, 0, 0x0102030405060708)
	got := Readn(buf, 8, 0)
	if got != 0x0102030405060708 {
		t.Fatalf("Readn/Writen round trip = %#x, want %#x", got, 0x0102030405060708)
	}

	Writen(buf, 4, 8, 0xdeadbeef)
	if got := Readn(buf, 4, 8); got != 0xdeadbeef {
		t.Fatalf("Readn(4, 8) = %#x, want %#x", got, 0xdeadbeef)
	}
}

func TestReadnWritenOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-bounds Writen")
		}
	}()
	buf := make([]byte, 4)
	Writen(buf, 8, 0, 1)
}
