package lfs

import "testing"

func TestDirAddLookupRemove(t *testing.T) {
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
	if err := v.DirAdd(RootIno, "hello.txt", ino, FtRegular); err != nil {
		t.Fatal(err)
	}

	got, ft, err := v.DirLookup(RootIno, "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != ino || ft != FtRegular {
		t.Fatalf("lookup = (%d, %s), want (%d, REG)", got, ft, ino)
	}

	if err := v.DirAdd(RootIno, "hello.txt", ino, FtRegular); err == nil {
		t.Fatal("expected EEXIST adding a duplicate name")
	}

	if err := v.DirRemove(RootIno, "hello.txt"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := v.DirLookup(RootIno, "hello.txt"); err == nil {
		t.Fatal("expected ENOENT after removal")
	}
}

func TestDirRejectsReservedNames(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	ino, err := v.CreateInode(ModeIFREG, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.DirAdd(RootIno, ".", ino, FtRegular); err == nil {
		t.Fatal("expected error adding reserved name \".\"")
	}
	if err := v.DirAdd(RootIno, "..", ino, FtRegular); err == nil {
		t.Fatal("expected error adding reserved name \"..\"")
	}
}

func TestDirCreateAndRemoveEmpty(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	sub, err := v.DirCreate(RootIno, "subdir", 0o755, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := v.ReadInode(sub)
	if err != nil {
		t.Fatal(err)
	}
	if !ModeIsDir(rec.Mode) || rec.LinksCount != 2 {
		t.Fatalf("subdir inode wrong: mode=%#o links=%d", rec.Mode, rec.LinksCount)
	}

	root, err := v.ReadInode(RootIno)
	if err != nil {
		t.Fatal(err)
	}
	if root.LinksCount != 3 {
		t.Fatalf("root links_count after mkdir = %d, want 3", root.LinksCount)
	}

	if err := v.DirRemoveEmpty(RootIno, "subdir"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := v.DirLookup(RootIno, "subdir"); err == nil {
		t.Fatal("expected ENOENT after rmdir")
	}
}

func TestDirRemoveEmptyRejectsNonEmpty(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	sub, err := v.DirCreate(RootIno, "subdir", 0o755, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	fileIno, err := v.CreateInode(ModeIFREG, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.DirAdd(sub, "f", fileIno, FtRegular); err != nil {
		t.Fatal(err)
	}

	if err := v.DirRemoveEmpty(RootIno, "subdir"); err == nil {
		t.Fatal("expected ENOTEMPTY removing a non-empty directory")
	}
}

func TestDirManyEntriesSpanMultipleBlocks(t *testing.T) {
	path := formatTestVolume(t)
	v, err := Mount(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()

	const n = 200
	for i := 0; i < n; i++ {
		ino, err := v.CreateInode(ModeIFREG, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		name := string(rune('a'+i%26)) + string(rune('A'+i%26)) + itoa(i)
		if err := v.DirAdd(RootIno, name, ino, FtRegular); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
