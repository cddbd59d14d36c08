package lfs

import (
	"path/filepath"
	"testing"
)

func formatTestVolume(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vol.img")
	if err := Mkfs(path, 4096, WithBlockSize(1024), WithTotalInodes(256), WithJournalBlocks(32)); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVolumeCreateReadUpdateDeleteInode(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	ino, err := v.CreateInode(ModeIFREG|0o644, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := v.ReadInode(ino)
	if err != nil {
		t.Fatal(err)
	}
	if rec.LinksCount != 1 {
		t.Fatalf("links_count = %d, want 1", rec.LinksCount)
	}

	rec.Uid = 42
	if err := v.UpdateInode(ino, rec); err != nil {
		t.Fatal(err)
	}
	got, err := v.ReadInode(ino)
	if err != nil {
		t.Fatal(err)
	}
	if got.Uid != 42 {
		t.Fatalf("uid after update = %d, want 42", got.Uid)
	}

	got.LinksCount = 0
	if err := v.UpdateInode(ino, got); err != nil {
		t.Fatal(err)
	}
	if err := v.DeleteInode(ino); err != nil {
		t.Fatal(err)
	}
	if _, err := v.ReadInode(ino); err == nil {
		t.Fatal("expected error reading a deleted inode")
	}
}

func TestVolumeReplaysJournalAfterDirtyReopen(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}

	ino, err := v.CreateInode(ModeIFREG|0o644, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.FileWrite(ino, []byte("crash-consistent"), 0); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash: close the device directly instead of calling
	// Unmount, so the superblock is left with state=DIRTY and the last
	// transaction's in-place writes may or may not have landed.
	v.dev.Close()

	v2, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v2.Unmount()

	rec, err := v2.ReadInode(ino)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, rec.Size)
	if _, err := v2.FileRead(ino, buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "crash-consistent" {
		t.Fatalf("content after replay = %q, want %q", buf, "crash-consistent")
	}
}

func TestVolumeRejectsCreateWhenFenced(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	v.fenced = true
	if _, err := v.CreateInode(ModeIFREG, 0, 0); err == nil {
		t.Fatal("expected create_inode to fail on a fenced volume")
	}
}
