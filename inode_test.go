package lfs

import "testing"

func TestInodeRoundTrip(t *testing.T) {
	rec := &Inode{
		Mode:       ModeIFREG | 0o644,
		Uid:        1000,
		Gid:        1000,
		Size:       4096,
		Atime:      1000,
		Mtime:      1001,
		Ctime:      1002,
		LinksCount: 1,
		Generation: 3,
	}
	rec.Blocks[0] = 42

	data, err := rec.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != InodeSize {
		t.Fatalf("encoded size = %d, want %d", len(data), InodeSize)
	}

	got := &Inode{}
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got.Size != rec.Size || got.Blocks[0] != 42 || got.Generation != 3 {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}
}

func TestInodeChecksumDetectsCorruption(t *testing.T) {
	rec := &Inode{Mode: ModeIFREG, Size: 10}
	data, err := rec.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xFF

	got := &Inode{}
	if err := got.UnmarshalBinary(data); err == nil {
		t.Fatal("expected checksum mismatch")
	}
}

func TestInodeLocation(t *testing.T) {
	bs := uint32(4096)
	perBlock := InodesPerBlock(bs)

	block, offset := inodeLocation(0, bs)
	if block != 1 || offset != 0 {
		t.Fatalf("inode 0: got block=%d offset=%d", block, offset)
	}

	block, offset = inodeLocation(perBlock, bs)
	if block != 2 || offset != 0 {
		t.Fatalf("inode %d: got block=%d offset=%d, want block=2 offset=0", perBlock, block, offset)
	}
}

func TestIsFree(t *testing.T) {
	var z Inode
	if !z.IsFree() {
		t.Fatal("zero-value inode should report free")
	}
	z.LinksCount = 1
	if z.IsFree() {
		t.Fatal("inode with links_count != 0 should not report free")
	}
}
