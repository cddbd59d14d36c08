package lfs

import (
	"path/filepath"
	"testing"
)

func TestMkfsThenMount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	if err := Mkfs(path, 2048, WithBlockSize(1024), WithTotalInodes(64), WithJournalBlocks(16)); err != nil {
		t.Fatal(err)
	}

	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	root, err := v.ReadInode(RootIno)
	if err != nil {
		t.Fatal(err)
	}
	if !ModeIsDir(root.Mode) {
		t.Fatalf("root mode %#o is not a directory", root.Mode)
	}
	if root.LinksCount != 2 {
		t.Fatalf("root links_count = %d, want 2", root.LinksCount)
	}

	ino, ft, err := v.DirLookup(RootIno, ".")
	if err != nil {
		t.Fatal(err)
	}
	if ino != RootIno || ft != FtDir {
		t.Fatalf("'.' resolved to (%d, %s), want (%d, DIR)", ino, ft, RootIno)
	}
}

func TestMkfsDefaultsMatchSpecScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	if err := Mkfs(path, DefaultTotalBlocks); err != nil {
		t.Fatal(err)
	}

	sb, err := ReadSuperblockAt(path)
	if err != nil {
		t.Fatal(err)
	}
	if sb.State != StateClean {
		t.Fatalf("state = %s, want CLEAN", sb.State)
	}
	if sb.TotalBlocks != DefaultTotalBlocks {
		t.Fatalf("total_blocks = %d, want %d", sb.TotalBlocks, DefaultTotalBlocks)
	}
	if sb.FreeInodes != 4095 {
		t.Fatalf("free_inodes = %d, want 4095", sb.FreeInodes)
	}

	root, err := ReadInodeAt(path, sb, RootIno)
	if err != nil {
		t.Fatal(err)
	}
	if root.LinksCount != 2 {
		t.Fatalf("root links_count = %d, want 2", root.LinksCount)
	}

	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	entries, err := v.readDirEntries(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("root has %d entries, want 2 (. and ..)", len(entries))
	}
	for _, e := range entries {
		if e.Ino != RootIno || e.FileType != FtDir {
			t.Fatalf("entry %+v does not target root as a directory", e)
		}
	}
}

func TestMkfsRejectsUndersizedDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	if err := Mkfs(path, 4, WithBlockSize(1024), WithTotalInodes(64), WithJournalBlocks(16)); err == nil {
		t.Fatal("expected error formatting a device too small for the layout")
	}
}

func TestMkfsRejectsBadBlockSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	if err := Mkfs(path, 1000, WithBlockSize(3000)); err == nil {
		t.Fatal("expected error for non-power-of-two block size")
	}
}
