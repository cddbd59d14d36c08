package lfs

import (
	"fmt"
)

// fsck.go implements the read-only consistency checker from spec
// §4.7/§6.3: open the device directly (never through Mount, so a dirty
// volume is inspected rather than silently repaired), cross-check the
// bitmap popcount against the free counters, walk the journal for
// pending entries, and flag anything that doesn't add up. The original
// tool's tools/fsck.lfs.c aborts at the first failing check; this
// version deliberately accumulates every mismatch into one report
// instead, a departure from the original rather than a copy of it.

// CheckReport collects every mismatch Fsck found. A volume with no
// entries in Problems is internally consistent.
type CheckReport struct {
	State                 State
	Problems              []string
	InodesChecked         uint32
	BlocksChecked         uint32
	JournalEntriesPending int
}

func (r *CheckReport) problem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Fsck opens path exclusively, the same as Mount, and walks the
// superblock, both bitmaps, and the inode table for structural
// consistency. It never replays the journal or writes anything back — a
// DIRTY volume is reported, not repaired; mount it (which replays) and
// unmount it cleanly before expecting a clean fsck run.
func Fsck(path string) (*CheckReport, error) {
	dev, err := openDevice(path, MinBlockSize)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	head, err := dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb := &Superblock{}
	if err := sb.UnmarshalBinary(head); err != nil {
		return nil, err
	}

	report := &CheckReport{State: sb.State}
	if err := sb.Validate(); err != nil {
		report.problem("superblock: %s", err)
		return report, nil
	}

	if sb.State == StateDirty {
		report.problem("volume is marked DIRTY; a journal replay is pending (mount it to replay, then re-run fsck)")
	}

	dev.Close()
	dev, err = openDevice(path, sb.BlockSize)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	inodeBitmapBlock, blockBitmapBlock := bitmapBlockLocations(sb)
	inoBytes, err := readSpanRaw(dev, inodeBitmapBlock, (uint64(sb.TotalInodes)+7)/8)
	if err != nil {
		return nil, err
	}
	blkBytes, err := readSpanRaw(dev, blockBitmapBlock, (uint64(sb.TotalBlocks)+7)/8)
	if err != nil {
		return nil, err
	}

	ialloc := loadInodeAllocator(inoBytes, sb.TotalInodes, sb.FreeInodes, make([]uint32, sb.TotalInodes), nil)
	balloc := loadBlockAllocator(blkBytes, sb.TotalBlocks, sb.FreeBlocks, nil)

	if err := checkJournal(dev, sb, report); err != nil {
		return nil, err
	}

	if got, want := ialloc.Popcount()+sb.FreeInodes, sb.TotalInodes; got != want {
		report.problem("inode bitmap: popcount(%d)+free_inodes(%d) = %d, want total_inodes %d", ialloc.Popcount(), sb.FreeInodes, got, want)
	}
	if got, want := balloc.Popcount()+sb.FreeBlocks, sb.TotalBlocks; got != want {
		report.problem("block bitmap: popcount(%d)+free_blocks(%d) = %d, want total_blocks %d", balloc.Popcount(), sb.FreeBlocks, got, want)
	}

	for ino := uint32(1); ino < sb.TotalInodes; ino++ {
		report.InodesChecked++
		block, offset := inodeLocation(ino, sb.BlockSize)
		blk, err := dev.ReadBlock(block)
		if err != nil {
			report.problem("inode %d: read error: %s", ino, err)
			continue
		}
		rec := &Inode{}
		if err := rec.UnmarshalBinary(blk[offset : offset+InodeSize]); err != nil {
			if ialloc.IsAllocated(ino) {
				report.problem("inode %d: marked allocated but record is corrupt: %s", ino, err)
			}
			continue
		}
		allocated := ialloc.IsAllocated(ino)
		if allocated && rec.IsFree() {
			report.problem("inode %d: marked allocated but record is all-zero", ino)
		}
		if !allocated && !rec.IsFree() {
			report.problem("inode %d: marked free but record is non-empty", ino)
		}
		if allocated && ModeIsDir(rec.Mode) && rec.LinksCount < 2 {
			report.problem("inode %d: directory has links_count %d, want >= 2", ino, rec.LinksCount)
		}
	}

	return report, nil
}

// checkJournal walks the on-disk journal for pending entries (spec
// §6.3's "walk journal for pending entries"), mirroring the region the
// original tool's check_journal() reads. Neither mount-time replay nor a
// clean unmount ever erases the journal's physical bytes — Journal.Clear
// only resets the in-memory ring (§4.6's unmount-time drain is logical,
// not a disk wipe) — so a CLEAN volume legitimately keeps old, already
// applied transactions lying around on disk and that alone is not a
// fault. A torn trailing group with no COMMIT marker is always a fault:
// it should have been discarded by the last replay. A committed
// transaction is only worth flagging when the volume is DIRTY, since
// that's the one state where it represents real unreplayed work.
func checkJournal(dev *blockDevice, sb *Superblock, report *CheckReport) error {
	j := newJournal(dev, sb.JournalStart, sb.JournalSize, nil)
	entries, err := j.readAllFromDisk()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	committed, torn := groupTransactions(entries)
	if sb.State == StateDirty {
		report.JournalEntriesPending = len(entries)
	}

	if len(torn) > 0 {
		report.problem("journal: %d trailing entr(ies) with no terminating COMMIT (torn transaction, should have been discarded on last replay)", len(torn))
	}
	if sb.State == StateDirty && len(committed) > 0 {
		report.problem("journal: %d committed transaction(s) pending replay", len(committed))
	}
	return nil
}

func readSpanRaw(dev *blockDevice, startBlock, numBytes uint64) ([]byte, error) {
	out := make([]byte, 0, numBytes)
	for uint64(len(out)) < numBytes {
		blk, err := dev.ReadBlock(startBlock + uint64(len(out))/uint64(dev.BlockSize()))
		if err != nil {
			return nil, err
		}
		out = append(out, blk...)
	}
	return out[:numBytes], nil
}
