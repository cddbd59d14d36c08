package lfs

import "encoding/binary"

// dir.go implements the directory engine from spec §4.4: a directory's
// data is a stream of variable-length records (inode | rec_len | name_len
// | file_type | name), whose header layout is grounded on the original
// project's lfs_format.h. The original's src/dir.c never actually
// implements entry packing (its read/add/del/lookup functions are
// one-line stubs), so rewriting the whole record stream compactly on
// every mutation, rather than leaving forwarding holes, is this
// module's own addition — the supplement described in SPEC_FULL §3.
//
// Every mutating entry point takes the directory's mutex ahead of its
// inode lock (spec §5 order: journal -> directory -> inode -> bitmaps),
// reads and decodes the full entry list, mutates it in memory, and
// writes the whole thing back as one journaled DIR_UPDATE + INODE_UPDATE
// transaction.

// dirEntryHeaderSize is inode(4) + rec_len(2) + name_len(1) + file_type(1).
const dirEntryHeaderSize = 8

type dirEntry struct {
	Ino      uint32
	RecLen   uint16
	NameLen  uint8
	FileType FileType
	Name     string
}

// dirRecLen returns the on-disk record length for a name of the given
// length, rounded up to a 4-byte boundary (spec §4.4).
func dirRecLen(nameLen int) uint16 {
	n := dirEntryHeaderSize + nameLen
	return uint16((n + 3) &^ 3)
}

func encodeDirEntries(entries []dirEntry) []byte {
	var out []byte
	for _, e := range entries {
		rec := make([]byte, e.RecLen)
		binary.LittleEndian.PutUint32(rec[0:4], e.Ino)
		binary.LittleEndian.PutUint16(rec[4:6], e.RecLen)
		rec[6] = e.NameLen
		rec[7] = byte(e.FileType)
		copy(rec[8:8+int(e.NameLen)], e.Name)
		out = append(out, rec...)
	}
	return out
}

func decodeDirEntries(content []byte) ([]dirEntry, error) {
	var out []dirEntry
	offset := 0
	for offset+dirEntryHeaderSize <= len(content) {
		ino := binary.LittleEndian.Uint32(content[offset : offset+4])
		recLen := binary.LittleEndian.Uint16(content[offset+4 : offset+6])
		nameLen := content[offset+6]
		fileType := FileType(content[offset+7])
		if recLen < dirEntryHeaderSize || offset+int(recLen) > len(content) {
			return nil, newErr("dir.decode", EIO, "corrupt directory record length")
		}
		if ino != 0 {
			name := string(content[offset+8 : offset+8+int(nameLen)])
			out = append(out, dirEntry{Ino: ino, RecLen: recLen, NameLen: nameLen, FileType: fileType, Name: name})
		}
		offset += int(recLen)
	}
	return out, nil
}

// readDirEntries reads dirIno's full content and decodes it. The caller
// must already hold at least a read lock on the directory's inode.
func (v *Volume) readDirEntries(rec *Inode) ([]dirEntry, error) {
	content := make([]byte, rec.Size)
	if _, err := v.rawRead(rec, content, 0); err != nil {
		return nil, err
	}
	return decodeDirEntries(content)
}

func validateName(op, name string) error {
	if name == "" || len(name) > NameMax {
		return newErr(op, EINVAL, "invalid name length")
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 || name[i] == '/' {
			return newErr(op, EINVAL, "name contains a reserved character")
		}
	}
	return nil
}

// commitDirMutation re-encodes entries, allocates whatever new blocks the
// result needs, and journals a DIR_UPDATE (full new content) together
// with an INODE_UPDATE (the directory's record, with the now-final block
// pointers and size) as a single transaction, then applies both in
// place. Callers hold dirIno's directory lock and inode write lock.
func (v *Volume) commitDirMutation(dirIno uint32, dirRec *Inode, entries []dirEntry) error {
	content := encodeDirEntries(entries)

	if err := v.ensureBlocksFor(dirRec, uint64(len(content))); err != nil {
		return err
	}
	dirRec.Size = uint64(len(content))
	dirRec.Mtime = now()

	inodeData, err := dirRec.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := v.journal.Add(dirIno, OpDirUpdate, content); err != nil {
		return err
	}
	if _, err := v.journal.Add(dirIno, OpInodeUpdate, inodeData); err != nil {
		return err
	}
	if err := v.journal.Commit(); err != nil {
		return v.fence(err)
	}

	if err := v.writeContentRaw(dirRec, content); err != nil {
		return err
	}
	return v.writeInodeRaw(dirIno, dirRec)
}

// acquireDir locks dirIno's directory mutex then its inode write lock, in
// the order required by spec §5, and loads its current record. The
// returned unlock function releases both in reverse order.
func (v *Volume) acquireDir(dirIno uint32) (rec *Inode, unlock func(), err error) {
	dmu := v.dirLock(dirIno)
	dmu.Lock()
	imu := v.inoLock(dirIno)
	imu.Lock()

	rec, err = v.readInodeRaw(dirIno)
	if err != nil {
		imu.Unlock()
		dmu.Unlock()
		return nil, nil, err
	}
	if !ModeIsDir(rec.Mode) {
		imu.Unlock()
		dmu.Unlock()
		return nil, nil, newInoErr("dir", dirIno, EINVAL, "not a directory")
	}
	return rec, func() { imu.Unlock(); dmu.Unlock() }, nil
}

// DirLookup resolves name within directory dirIno (spec §4.4).
func (v *Volume) DirLookup(dirIno uint32, name string) (uint32, FileType, error) {
	if err := validateName("dir_lookup", name); err != nil {
		return 0, 0, err
	}
	dmu := v.dirLock(dirIno)
	dmu.Lock()
	imu := v.inoLock(dirIno)
	imu.RLock()
	defer func() { imu.RUnlock(); dmu.Unlock() }()

	rec, err := v.readInodeRaw(dirIno)
	if err != nil {
		return 0, 0, err
	}
	if !ModeIsDir(rec.Mode) {
		return 0, 0, newInoErr("dir_lookup", dirIno, EINVAL, "not a directory")
	}
	entries, err := v.readDirEntries(rec)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Ino, e.FileType, nil
		}
	}
	return 0, 0, newInoErr("dir_lookup", dirIno, ENOENT, "no such entry")
}

// DirAdd inserts (name -> ino) into directory dirIno, rejecting
// duplicates (spec §4.4).
func (v *Volume) DirAdd(dirIno uint32, name string, ino uint32, ft FileType) error {
	if err := v.checkFenced("dir_add"); err != nil {
		return err
	}
	if err := validateName("dir_add", name); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return newInoErr("dir_add", dirIno, EINVAL, "\".\" and \"..\" are reserved")
	}

	rec, unlock, err := v.acquireDir(dirIno)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := v.readDirEntries(rec)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == name {
			return newInoErr("dir_add", dirIno, EEXIST, "entry already exists")
		}
	}

	entries = append(entries, dirEntry{
		Ino:      ino,
		RecLen:   dirRecLen(len(name)),
		NameLen:  uint8(len(name)),
		FileType: ft,
		Name:     name,
	})
	if ft == FtDir {
		rec.LinksCount++ // the new subdirectory's ".." points back here
	}
	return v.commitDirMutation(dirIno, rec, entries)
}

// DirRemove deletes name from directory dirIno. It does not touch the
// target inode's link count or free it — callers (rmdir/unlink) do that
// after deciding whether the removal is valid (spec §4.4).
func (v *Volume) DirRemove(dirIno uint32, name string) error {
	if err := v.checkFenced("dir_remove"); err != nil {
		return err
	}
	if err := validateName("dir_remove", name); err != nil {
		return err
	}

	rec, unlock, err := v.acquireDir(dirIno)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := v.readDirEntries(rec)
	if err != nil {
		return err
	}

	found := -1
	for i, e := range entries {
		if e.Name == name {
			found = i
			break
		}
	}
	if found == -1 {
		return newInoErr("dir_remove", dirIno, ENOENT, "no such entry")
	}
	removed := entries[found]
	entries = append(entries[:found], entries[found+1:]...)
	if removed.FileType == FtDir && rec.LinksCount > 0 {
		rec.LinksCount--
	}
	return v.commitDirMutation(dirIno, rec, entries)
}

// dirIsEmpty reports whether a directory inode's content holds only the
// mandatory "." and ".." entries.
func (v *Volume) dirIsEmpty(rec *Inode) (bool, error) {
	entries, err := v.readDirEntries(rec)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return false, nil
		}
	}
	return true, nil
}

// DirCreate allocates a new directory inode under parentIno named name,
// populates it with "." and ".." and a LinksCount of 2, links it into the
// parent, and returns its inode number (spec §4.4).
func (v *Volume) DirCreate(parentIno uint32, name string, mode uint16, uid, gid uint32) (uint32, error) {
	if err := v.checkFenced("dir_create"); err != nil {
		return 0, err
	}
	if err := validateName("dir_create", name); err != nil {
		return 0, err
	}

	newIno, err := v.CreateInode(mode|ModeIFDIR, uid, gid)
	if err != nil {
		return 0, err
	}

	selfEntries := []dirEntry{
		{Ino: newIno, RecLen: dirRecLen(1), NameLen: 1, FileType: FtDir, Name: "."},
		{Ino: parentIno, RecLen: dirRecLen(2), NameLen: 2, FileType: FtDir, Name: ".."},
	}

	newRec, unlock, err := v.acquireDir(newIno)
	if err != nil {
		v.ialloc.Free(newIno)
		return 0, err
	}
	newRec.LinksCount = 2
	if err := v.commitDirMutation(newIno, newRec, selfEntries); err != nil {
		unlock()
		v.ialloc.Free(newIno)
		return 0, err
	}
	unlock()

	if err := v.DirAdd(parentIno, name, newIno, FtDir); err != nil {
		return 0, err
	}
	return newIno, nil
}

// DirRemoveEmpty removes the subdirectory named name from parentIno after
// verifying it contains nothing but "." and "..", then deletes its inode
// (spec §4.4: rmdir fails with ENOTEMPTY on a non-empty directory).
func (v *Volume) DirRemoveEmpty(parentIno uint32, name string) error {
	if err := v.checkFenced("dir_remove_empty"); err != nil {
		return err
	}
	childIno, ft, err := v.DirLookup(parentIno, name)
	if err != nil {
		return err
	}
	if ft != FtDir {
		return newInoErr("dir_remove_empty", childIno, EINVAL, "not a directory")
	}

	childRec, err := v.ReadInode(childIno)
	if err != nil {
		return err
	}
	empty, err := v.dirIsEmpty(childRec)
	if err != nil {
		return err
	}
	if !empty {
		return newInoErr("dir_remove_empty", childIno, ENOTEMPTY, "directory not empty")
	}

	if err := v.DirRemove(parentIno, name); err != nil {
		return err
	}

	childRec, err = v.ReadInode(childIno)
	if err != nil {
		return err
	}
	childRec.LinksCount = 0
	if err := v.UpdateInode(childIno, childRec); err != nil {
		return err
	}
	return v.DeleteInode(childIno)
}
