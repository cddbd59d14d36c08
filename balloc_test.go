package lfs

import "testing"

func TestBlockAllocatorReservesUpTo(t *testing.T) {
	b := newBlockAllocator(100, 10, nil)
	if b.FreeCount() != 90 {
		t.Fatalf("free = %d, want 90", b.FreeCount())
	}
	for i := uint32(0); i < 10; i++ {
		if !b.IsAllocated(i) {
			t.Fatalf("reserved block %d should be allocated", i)
		}
	}
}

func TestBlockAllocatorAllocFree(t *testing.T) {
	b := newBlockAllocator(8, 0, nil)
	first, err := b.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if first != 0 {
		t.Fatalf("first alloc = %d, want 0", first)
	}
	second, err := b.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if second != 1 {
		t.Fatalf("second alloc = %d, want 1", second)
	}
	if err := b.Free(first); err != nil {
		t.Fatal(err)
	}
	if b.IsAllocated(first) {
		t.Fatalf("block %d should be free after Free", first)
	}
}

func TestBlockAllocatorRefusesFreeReserved(t *testing.T) {
	b := newBlockAllocator(10, 4, nil)
	if err := b.Free(2); err == nil {
		t.Fatal("expected error freeing a reserved block")
	}
}

func TestBlockAllocatorDoubleFreeIsNoop(t *testing.T) {
	b := newBlockAllocator(10, 0, nil)
	idx, _ := b.Alloc()
	if err := b.Free(idx); err != nil {
		t.Fatal(err)
	}
	if err := b.Free(idx); err != nil {
		t.Fatalf("double free should be a no-op, got error: %v", err)
	}
}

func TestBlockAllocatorExhaustion(t *testing.T) {
	b := newBlockAllocator(2, 0, nil)
	if _, err := b.Alloc(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Alloc(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Alloc(); err == nil {
		t.Fatal("expected ENOSPC when exhausted")
	}
}

func TestBlockAllocatorPopcountMatchesBytes(t *testing.T) {
	b := newBlockAllocator(16, 3, nil)
	b.Alloc()
	b.Alloc()
	if got, want := b.Popcount(), uint32(5); got != want {
		t.Fatalf("popcount = %d, want %d", got, want)
	}
	loaded := loadBlockAllocator(b.Bytes(), 16, b.FreeCount(), nil)
	if loaded.Popcount() != b.Popcount() {
		t.Fatalf("round-tripped popcount mismatch: %d vs %d", loaded.Popcount(), b.Popcount())
	}
}
