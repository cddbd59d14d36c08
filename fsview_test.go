package lfs

import (
	"errors"
	"io"
	"io/fs"
	"testing"
)

func TestVolumeFSOpenReadsFile(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	ino, err := v.CreateInode(ModeIFREG|0o644, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.FileWrite(ino, []byte("hello, fs.FS"), 0); err != nil {
		t.Fatal(err)
	}
	if err := v.DirAdd(RootIno, "greeting.txt", ino, FtRegular); err != nil {
		t.Fatal(err)
	}

	fsys := v.FS()
	f, err := fsys.Open("greeting.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello, fs.FS" {
		t.Fatalf("got %q", data)
	}
}

func TestVolumeFSOpenMissing(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	if _, err := v.FS().Open("nope.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}
