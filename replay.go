package lfs

// replay implements the mount-time recovery procedure from spec §4.5:
// walk the on-disk journal region, group entries into transactions
// terminated by a COMMIT marker, discard any trailing torn transaction,
// and re-apply every completed transaction's entries.
//
// A transaction is applied in two passes. The first pass applies
// INODE_UPDATE, BLOCK_ALLOC, BLOCK_FREE, and SUPER_UPDATE entries, which
// together fully determine an inode's final block-pointer list. The
// second pass applies DIR_UPDATE entries, which carry only the
// directory's new content — not which blocks it lives in — so they must
// run after the paired INODE_UPDATE has already landed the block
// pointers they need to locate that content on disk.
func (v *Volume) replay() error {
	entries, err := v.journal.readAllFromDisk()
	if err != nil {
		return err
	}
	committed, torn := groupTransactions(entries)
	if len(torn) > 0 {
		v.log.WithField("entries", len(torn)).Warn("lfs: discarding torn trailing transaction")
	}

	for _, txn := range committed {
		if err := v.replayTransaction(txn); err != nil {
			return err
		}
	}

	v.journal.Clear()
	v.sbMu.Lock()
	v.sb.State = StateClean
	v.sbMu.Unlock()
	return v.flushSuperblock()
}

func (v *Volume) replayTransaction(txn replayTransaction) error {
	var dirEntries []*JournalEntry

	for _, e := range txn.entries {
		switch e.OpType {
		case OpInodeUpdate:
			rec := &Inode{}
			if err := rec.UnmarshalBinary(e.Payload); err != nil {
				return newInoErr("replay", e.InodeNum, EIO, "corrupt INODE_UPDATE payload: "+err.Error())
			}
			if err := v.writeInodeRaw(e.InodeNum, rec); err != nil {
				return err
			}
			// The inode bitmap is only persisted at Unmount, so the
			// replayed record also decides the slot's bitmap bit.
			if rec.IsFree() {
				if err := v.ialloc.Free(e.InodeNum); err != nil {
					return err
				}
			} else if e.InodeNum < v.ialloc.total {
				v.ialloc.mu.Lock()
				if !v.ialloc.bits.Test(uint(e.InodeNum)) {
					v.ialloc.bits.Set(uint(e.InodeNum))
					v.ialloc.free--
				}
				v.ialloc.mu.Unlock()
			}
		case OpBlockAlloc:
			if err := v.balloc.MarkAllocated(decodeU32(e.Payload)); err != nil {
				return err
			}
		case OpBlockFree:
			if err := v.balloc.Free(decodeU32(e.Payload)); err != nil {
				return err
			}
		case OpSuperUpdate:
			sb := &Superblock{}
			if err := sb.UnmarshalBinary(e.Payload); err != nil {
				return newErr("replay", EIO, "corrupt SUPER_UPDATE payload: "+err.Error())
			}
			v.sbMu.Lock()
			sb.State = v.sb.State // preserve the live mount's dirty/clean bookkeeping
			v.sb = sb
			v.sbMu.Unlock()
		case OpDirUpdate:
			dirEntries = append(dirEntries, e)
		case OpCommit:
			// groupTransactions already stripped these; nothing to do.
		default:
			return newInoErr("replay", e.InodeNum, EIO, "unknown journal op type")
		}
	}

	for _, e := range dirEntries {
		if err := v.replayDirUpdate(e); err != nil {
			return err
		}
	}
	return nil
}

// replayDirUpdate writes a journaled directory payload back into the
// now-current block pointers of the directory inode it names.
func (v *Volume) replayDirUpdate(e *JournalEntry) error {
	rec, err := v.readInodeRaw(e.InodeNum)
	if err != nil {
		return err
	}
	return v.writeContentRaw(rec, e.Payload)
}
