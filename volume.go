package lfs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Volume is a mounted LFS filesystem: the superblock, both bitmap
// allocators, the journal, and the per-object locks that guard them.
// Ownership follows spec §3: the superblock record, both bitmaps, and
// the journal ring are owned exclusively by the Volume and released
// exactly once on Unmount.
//
// Lock ordering (spec §5) is fixed: journal -> directory -> inode ->
// bitmaps. Every exported method below acquires locks in that order.
type Volume struct {
	dev *blockDevice

	sbMu sync.Mutex
	sb   *Superblock

	balloc  *blockAllocator
	ialloc  *inodeAllocator
	journal *Journal

	dirLocks   sync.Map // ino uint32 -> *sync.Mutex
	inoLocks   sync.Map // ino uint32 -> *sync.RWMutex
	generation sync.Map // ino uint32 -> uint32; not populated, generations are tracked by ialloc

	log *logrus.Entry

	fenced bool // set on a critical-section I/O error; further writes are rejected with EIO
}

func (v *Volume) dirLock(ino uint32) *sync.Mutex {
	l, _ := v.dirLocks.LoadOrStore(ino, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (v *Volume) inoLock(ino uint32) *sync.RWMutex {
	l, _ := v.inoLocks.LoadOrStore(ino, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

func (v *Volume) fence(err error) error {
	if err != nil {
		v.fenced = true
		v.sbMu.Lock()
		v.sb.State = StateDirty
		v.sbMu.Unlock()
	}
	return err
}

func (v *Volume) checkFenced(op string) error {
	if v.fenced {
		return newErr(op, EIO, "volume fenced after prior I/O error")
	}
	return nil
}

// Mount opens path, validates the superblock, loads both bitmaps, and
// replays the journal if the volume was not cleanly unmounted (spec
// §4.6). It then marks the volume dirty and flushes before returning, so
// any crash after this point forces a replay on the next mount.
func Mount(path string) (*Volume, error) {
	// Superblock is always 128 bytes within block 0; a device's block
	// size isn't known until we've read it, so probe with the minimum
	// block size first.
	probe, err := openDevice(path, MinBlockSize)
	if err != nil {
		return nil, err
	}
	head, err := probe.ReadBlock(0)
	if err != nil {
		probe.Close()
		return nil, err
	}
	sb := &Superblock{}
	if err := sb.UnmarshalBinary(head); err != nil {
		probe.Close()
		return nil, err
	}
	if err := sb.Validate(); err != nil {
		probe.Close()
		return nil, err
	}
	probe.Close()

	dev, err := openDevice(path, sb.BlockSize)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"uuid": uuidString(sb.UUID), "component": "lfs"})

	v := &Volume{dev: dev, sb: sb, log: log}

	if err := v.loadBitmaps(); err != nil {
		dev.Close()
		return nil, err
	}
	v.journal = newJournal(dev, sb.JournalStart, sb.JournalSize, log)

	if sb.State == StateDirty {
		log.Warn("lfs: volume was not cleanly unmounted, replaying journal")
		if err := v.replay(); err != nil {
			dev.Close()
			return nil, err
		}
	}

	v.sb.State = StateDirty
	if err := v.flushSuperblock(); err != nil {
		dev.Close()
		return nil, err
	}

	if !v.ialloc.IsAllocated(RootIno) {
		dev.Close()
		return nil, newErr("mount", EINVAL, "root inode missing")
	}

	return v, nil
}

func uuidString(u [16]byte) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 0, 36)
	for i, c := range u {
		if i == 4 || i == 6 || i == 8 || i == 10 {
			b = append(b, '-')
		}
		b = append(b, hex[c>>4], hex[c&0xf])
	}
	return string(b)
}

func (v *Volume) loadBitmaps() error {
	inodeBitmapBlock, blockBitmapBlock := bitmapBlockLocations(v.sb)

	inoBytes, err := v.readSpan(inodeBitmapBlock, (uint64(v.sb.TotalInodes)+7)/8)
	if err != nil {
		return err
	}
	blkBytes, err := v.readSpan(blockBitmapBlock, (uint64(v.sb.TotalBlocks)+7)/8)
	if err != nil {
		return err
	}

	v.ialloc = loadInodeAllocator(inoBytes, v.sb.TotalInodes, v.sb.FreeInodes, make([]uint32, v.sb.TotalInodes), v.log)
	v.balloc = loadBlockAllocator(blkBytes, v.sb.TotalBlocks, v.sb.FreeBlocks, v.log)
	v.balloc.reservedUpTo = uint32(v.sb.JournalStart + uint64(v.sb.JournalSize))
	return nil
}

// bitmapBlockLocations returns the starting block of the inode bitmap and
// the block bitmap, per the layout fixed at mkfs time (spec §6.1: inode
// table, then inode bitmap, then block bitmap).
func bitmapBlockLocations(sb *Superblock) (inodeBitmapBlock, blockBitmapBlock uint64) {
	inodeTableBlocks := InodeTableBlocks(uint64(sb.TotalInodes), sb.BlockSize)
	inodeBitmapBlock = 1 + inodeTableBlocks
	inodeBitmapBlocks := blocksFor(uint64(sb.TotalInodes)/8+1, sb.BlockSize)
	blockBitmapBlock = inodeBitmapBlock + inodeBitmapBlocks
	return
}

func blocksFor(bytes uint64, blockSize uint32) uint64 {
	return (bytes + uint64(blockSize) - 1) / uint64(blockSize)
}

func (v *Volume) readSpan(startBlock, numBytes uint64) ([]byte, error) {
	out := make([]byte, 0, numBytes)
	for uint64(len(out)) < numBytes {
		blk, err := v.dev.ReadBlock(startBlock + uint64(len(out))/uint64(v.dev.BlockSize()))
		if err != nil {
			return nil, err
		}
		out = append(out, blk...)
	}
	return out[:numBytes], nil
}

func (v *Volume) writeSpan(startBlock uint64, data []byte) error {
	bs := v.dev.BlockSize()
	for written := uint64(0); written < uint64(len(data)); written += uint64(bs) {
		blk := make([]byte, bs)
		n := copy(blk, data[written:])
		_ = n
		if err := v.dev.WriteBlock(startBlock+written/uint64(bs), blk); err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) flushSuperblock() error {
	v.sbMu.Lock()
	data, err := v.sb.MarshalBinary()
	v.sbMu.Unlock()
	if err != nil {
		return err
	}
	blk := make([]byte, v.dev.BlockSize())
	copy(blk, data)
	if err := v.dev.WriteBlock(0, blk); err != nil {
		return err
	}
	return v.dev.Flush()
}

func (v *Volume) flushBitmaps() error {
	inodeBitmapBlock, blockBitmapBlock := bitmapBlockLocations(v.sb)
	if err := v.writeSpan(inodeBitmapBlock, v.ialloc.Bytes()); err != nil {
		return err
	}
	if err := v.writeSpan(blockBitmapBlock, v.balloc.Bytes()); err != nil {
		return err
	}
	return nil
}

// Unmount drains pending transactions, persists both bitmaps, and writes
// a CRC-correct superblock with state=CLEAN (spec §4.6).
func (v *Volume) Unmount() error {
	if err := v.journal.Commit(); err != nil {
		return v.fence(err)
	}
	if err := v.flushBitmaps(); err != nil {
		return v.fence(err)
	}

	v.sbMu.Lock()
	v.sb.FreeBlocks = v.balloc.FreeCount()
	v.sb.FreeInodes = v.ialloc.FreeCount()
	v.sb.State = StateClean
	v.sbMu.Unlock()

	if err := v.flushSuperblock(); err != nil {
		return v.fence(err)
	}
	v.journal.Clear()
	return v.dev.Close()
}

// AllocBlock allocates a free data block (spec §4.2, §6.4).
func (v *Volume) AllocBlock() (uint32, error) {
	if err := v.checkFenced("alloc_block"); err != nil {
		return 0, err
	}
	idx, err := v.balloc.Alloc()
	if err != nil {
		return 0, err
	}
	if _, jerr := v.journal.Add(0, OpBlockAlloc, encodeU32(idx)); jerr != nil {
		v.balloc.Free(idx)
		return 0, jerr
	}
	return idx, nil
}

// FreeBlock releases a data block back to the bitmap (spec §4.2, §6.4).
func (v *Volume) FreeBlock(idx uint32) error {
	if err := v.checkFenced("free_block"); err != nil {
		return err
	}
	if _, err := v.journal.Add(0, OpBlockFree, encodeU32(idx)); err != nil {
		return err
	}
	return v.balloc.Free(idx)
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// now returns the current time as a UNIX timestamp; split out so tests
// can see the exact convention used for Atime/Mtime/Ctime.
func now() int64 { return time.Now().Unix() }
