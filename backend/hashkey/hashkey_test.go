package hashkey

import "testing"

func TestAddrMasksToDepth(t *testing.T) {
	seq, err := Addr(nil, []byte("order-1"), 8)
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}
	if seq>>8 != 0 {
		t.Fatalf("sequence %v not masked to 8 bits", seq)
	}
}

func TestAddrInvalidDepth(t *testing.T) {
	if _, err := Addr(nil, []byte("k"), 0); err == nil {
		t.Fatal("expected error for depth 0")
	}
	if _, err := Addr(nil, []byte("k"), MaxDepth+1); err == nil {
		t.Fatal("expected error for depth > MaxDepth")
	}
}

func TestLowBitsEqual(t *testing.T) {
	a := Sequence(0b1011)
	b := Sequence(0b0011)
	if !LowBitsEqual(a, b, 2) {
		t.Error("expected low 2 bits to match")
	}
	if LowBitsEqual(a, b, 4) {
		t.Error("expected low 4 bits to differ")
	}
}

func TestBit(t *testing.T) {
	s := Sequence(0b0101)
	if s.Bit(0) != 1 || s.Bit(1) != 0 || s.Bit(2) != 1 || s.Bit(3) != 0 {
		t.Errorf("unexpected bit decomposition of %b", s)
	}
}

func TestStringMostSignificantBitFirst(t *testing.T) {
	s := Sequence(0b1010)
	if got := s.String(4); got != "1010" {
		t.Errorf("String(4) = %q, want 1010", got)
	}
}

func TestDefaultHashDeterministic(t *testing.T) {
	a := DefaultHash([]byte("same"))
	b := DefaultHash([]byte("same"))
	if a != b {
		t.Error("DefaultHash is not deterministic")
	}
}
