package lfs

import "testing"

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &Superblock{
		Magic:        Magic,
		Version:      FormatVersion,
		BlockSize:    4096,
		TotalBlocks:  1000,
		FreeBlocks:   900,
		TotalInodes:  128,
		FreeInodes:   120,
		JournalStart: 50,
		JournalSize:  16,
		State:        StateClean,
		UUID:         NewUUID(),
	}
	data, err := sb.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != SuperblockSize {
		t.Fatalf("encoded size = %d, want %d", len(data), SuperblockSize)
	}

	got := &Superblock{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got.TotalBlocks != sb.TotalBlocks || got.JournalStart != sb.JournalStart || got.UUID != sb.UUID {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, sb)
	}
}

func TestSuperblockChecksumDetectsCorruption(t *testing.T) {
	sb := &Superblock{Magic: Magic, Version: FormatVersion, BlockSize: 4096, TotalBlocks: 10, TotalInodes: 10}
	data, err := sb.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	data[4] ^= 0xFF // corrupt a byte outside the checksum field

	got := &Superblock{}
	if err := got.UnmarshalBinary(data); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestSuperblockValidate(t *testing.T) {
	sb := &Superblock{Magic: Magic, BlockSize: 4096, TotalBlocks: 10, FreeBlocks: 20, TotalInodes: 10}
	if err := sb.Validate(); err == nil {
		t.Fatal("expected error: free_blocks > total_blocks")
	}

	sb2 := &Superblock{Magic: Magic + 1, BlockSize: 4096, TotalBlocks: 10}
	if err := sb2.Validate(); err == nil {
		t.Fatal("expected error: bad magic")
	}

	sb3 := &Superblock{Magic: Magic, BlockSize: 3000, TotalBlocks: 10}
	if err := sb3.Validate(); err == nil {
		t.Fatal("expected error: block size not a power of two")
	}
}
