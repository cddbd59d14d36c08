package lfs

// FileRead and FileWrite implement the host-facing file_read/file_write
// contract from spec §6.4, built on the block-mapping helpers in
// blockmap.go. Adapted from the teacher's file.go, which wraps an inode
// in io.Reader-shaped views; here the inode is additionally writable, so
// the operations are exposed directly rather than through io.ReaderAt,
// matching the rest of the §6.4 surface (explicit offset/count).
//
// Each public entry point takes the per-inode lock and delegates to an
// unlocked "raw" worker; the directory engine (dir.go) reuses the raw
// workers directly because it must hold the directory lock and the
// inode lock together for the whole read-modify-write cycle (spec §5
// lock order: journal -> directory -> inode -> bitmaps).

// FileRead reads up to len(buf) bytes of ino's data starting at offset
// into buf, returning the number of bytes read. Reads never return more
// than the inode's current size; reads past EOF return 0, nil. Holes in
// a sparsely-allocated file read back as zero bytes.
func (v *Volume) FileRead(ino uint32, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, newInoErr("file_read", ino, EINVAL, "negative offset")
	}
	lock := v.inoLock(ino)
	lock.RLock()
	defer lock.RUnlock()

	rec, err := v.readInodeRaw(ino)
	if err != nil {
		return 0, err
	}
	if !ModeIsRegular(rec.Mode) {
		return 0, newInoErr("file_read", ino, EINVAL, "not a regular file")
	}
	return v.rawRead(rec, buf, offset)
}

// rawRead reads into buf from rec's data, clamped to rec.Size, without
// taking any lock or allocating blocks. Holes read back as zero.
func (v *Volume) rawRead(rec *Inode, buf []byte, offset int64) (int, error) {
	if uint64(offset) >= rec.Size {
		return 0, nil
	}
	remaining := rec.Size - uint64(offset)
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	bs := v.dev.BlockSize()
	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		logical := uint32(pos / int64(bs))
		inBlock := uint32(pos % int64(bs))

		phys, err := v.resolveBlock(rec, logical, false)
		if err != nil {
			return total, err
		}

		n := bs - inBlock
		if remain := len(buf) - total; uint32(remain) < n {
			n = uint32(remain)
		}

		if phys == 0 {
			for i := uint32(0); i < n; i++ {
				buf[int(total)+int(i)] = 0
			}
		} else {
			blk, err := v.dev.ReadBlock(uint64(phys))
			if err != nil {
				return total, v.fence(err)
			}
			copy(buf[total:total+int(n)], blk[inBlock:inBlock+n])
		}
		total += int(n)
	}
	return total, nil
}

// FileWrite writes buf to ino's data starting at offset, allocating new
// blocks as needed and extending Size when the write lands past the
// current end of file. Only the inode metadata update is journaled; the
// data blocks themselves are not (spec: data journaling is a Non-goal).
func (v *Volume) FileWrite(ino uint32, buf []byte, offset int64) (int, error) {
	if err := v.checkFenced("file_write"); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, newInoErr("file_write", ino, EINVAL, "negative offset")
	}
	if len(buf) == 0 {
		return 0, nil
	}
	bs := v.dev.BlockSize()
	if uint64(offset+int64(len(buf))) > MaxFileBlocks(bs)*uint64(bs) {
		return 0, newInoErr("file_write", ino, ENOSPC, "write exceeds maximum file size")
	}

	lock := v.inoLock(ino)
	lock.Lock()
	defer lock.Unlock()

	rec, err := v.readInodeRaw(ino)
	if err != nil {
		return 0, err
	}
	if !ModeIsRegular(rec.Mode) {
		return 0, newInoErr("file_write", ino, EINVAL, "not a regular file")
	}

	total, err := v.rawWrite(rec, buf, offset)
	if newSize := uint64(offset) + uint64(total); newSize > rec.Size {
		rec.Size = newSize
	}
	rec.Mtime = now()
	if err != nil {
		return total, err
	}
	if err := v.journalInodeUpdate(ino, rec); err != nil {
		return total, err
	}
	return total, nil
}

// rawWrite allocates blocks as needed (via resolveBlock(alloc=true),
// which journals each BLOCK_ALLOC) and writes buf into rec's data at
// offset. It does not journal or persist the inode record itself — the
// caller does that once, after also updating Size/Mtime.
func (v *Volume) rawWrite(rec *Inode, buf []byte, offset int64) (int, error) {
	bs := v.dev.BlockSize()
	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		logical := uint32(pos / int64(bs))
		inBlock := uint32(pos % int64(bs))

		phys, err := v.resolveBlock(rec, logical, true)
		if err != nil {
			return total, err
		}

		n := bs - inBlock
		if remain := len(buf) - total; uint32(remain) < n {
			n = uint32(remain)
		}

		blk, err := v.dev.ReadBlock(uint64(phys))
		if err != nil {
			return total, v.fence(err)
		}
		copy(blk[inBlock:inBlock+n], buf[total:total+int(n)])
		if err := v.dev.WriteBlock(uint64(phys), blk); err != nil {
			return total, v.fence(err)
		}
		total += int(n)
	}
	return total, nil
}

// writeContentRaw writes content into rec's data starting at offset 0,
// using only already-resolved block pointers (alloc=false) — the
// directory engine and journal replay call this once a record's final
// block-pointer list is already known and durable.
func (v *Volume) writeContentRaw(rec *Inode, content []byte) error {
	bs := v.dev.BlockSize()
	for written := 0; written < len(content); {
		logical := uint32(written) / bs
		inBlock := uint32(written) % bs

		phys, err := v.resolveBlock(rec, logical, false)
		if err != nil {
			return err
		}
		if phys == 0 {
			return newInoErr("dir_update", 0, EIO, "missing block pointer for directory content")
		}

		n := bs - inBlock
		if remain := len(content) - written; uint32(remain) < n {
			n = uint32(remain)
		}

		blk, err := v.dev.ReadBlock(uint64(phys))
		if err != nil {
			return v.fence(err)
		}
		copy(blk[inBlock:inBlock+n], content[written:written+int(n)])
		if err := v.dev.WriteBlock(uint64(phys), blk); err != nil {
			return v.fence(err)
		}
		written += int(n)
	}
	return nil
}

// ensureBlocksFor allocates (but does not write) every block needed to
// hold `size` bytes of rec's data, mutating rec.Blocks in place. Used by
// the directory engine so the inode's final block-pointer list is known
// before it journals the paired INODE_UPDATE entry.
func (v *Volume) ensureBlocksFor(rec *Inode, size uint64) error {
	if size == 0 {
		return nil
	}
	bs := uint64(v.dev.BlockSize())
	numBlocks := (size + bs - 1) / bs
	for logical := uint64(0); logical < numBlocks; logical++ {
		if _, err := v.resolveBlock(rec, uint32(logical), true); err != nil {
			return err
		}
	}
	return nil
}
