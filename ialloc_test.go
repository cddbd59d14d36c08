package lfs

import "testing"

func TestInodeAllocatorReservesZero(t *testing.T) {
	a := newInodeAllocator(10, nil)
	if !a.IsAllocated(0) {
		t.Fatal("inode 0 must always be allocated")
	}
	if a.FreeCount() != 9 {
		t.Fatalf("free = %d, want 9", a.FreeCount())
	}
}

func TestInodeAllocatorGenerationIncrementsOnReuse(t *testing.T) {
	a := newInodeAllocator(4, nil)
	ino, gen1, err := a.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if gen1 != 1 {
		t.Fatalf("first generation = %d, want 1", gen1)
	}
	if err := a.Free(ino); err != nil {
		t.Fatal(err)
	}
	// Force the same slot to be handed out again.
	a.hint = ino
	ino2, gen2, err := a.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if ino2 != ino {
		t.Fatalf("expected reuse of inode %d, got %d", ino, ino2)
	}
	if gen2 != gen1+1 {
		t.Fatalf("generation after reuse = %d, want %d", gen2, gen1+1)
	}
}

func TestInodeAllocatorRefusesFreeZero(t *testing.T) {
	a := newInodeAllocator(4, nil)
	if err := a.Free(0); err == nil {
		t.Fatal("expected error freeing inode 0")
	}
}

func TestInodeAllocatorExhaustion(t *testing.T) {
	a := newInodeAllocator(2, nil)
	if _, _, err := a.Alloc(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Alloc(); err == nil {
		t.Fatal("expected ENOSPC when exhausted")
	}
}
