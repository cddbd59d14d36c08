package lfs

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// mkfs.go formats a fresh device (spec §4.6, §6.1). It works directly
// against a *blockDevice rather than a *Volume: there is no journal to
// replay and nothing concurrent to lock, so every structure is laid out
// once, in order, and flushed.

// mkfsConfig collects Mkfs's defaults, following the teacher's functional
// options style (its options.go configured a squashfs writer the same
// way).
type mkfsConfig struct {
	blockSize     uint32
	totalInodes   uint32
	journalBlocks uint32
	rootMode      uint16
	rootUID       uint32
	rootGID       uint32
}

// DefaultTotalBlocks is mkfs.lfs's default device size when the caller
// gives only a path, per spec defaults (block_size=4096, total_blocks=65536,
// total_inodes=4096, journal_size=128).
const DefaultTotalBlocks = 65536

func defaultMkfsConfig() mkfsConfig {
	return mkfsConfig{
		blockSize:     4096,
		totalInodes:   4096,
		journalBlocks: 128,
		rootMode:      ModeIFDIR | 0o755,
	}
}

// MkfsOption configures Mkfs.
type MkfsOption func(*mkfsConfig)

// WithBlockSize sets the device's block size; must be a power of two in
// [MinBlockSize, MaxBlockSize].
func WithBlockSize(n uint32) MkfsOption {
	return func(c *mkfsConfig) { c.blockSize = n }
}

// WithTotalInodes sets how many inode slots the inode table reserves.
func WithTotalInodes(n uint32) MkfsOption {
	return func(c *mkfsConfig) { c.totalInodes = n }
}

// WithJournalBlocks sets the size in blocks of the on-disk journal region.
func WithJournalBlocks(n uint32) MkfsOption {
	return func(c *mkfsConfig) { c.journalBlocks = n }
}

// WithRootMode sets the root directory's permission bits (the directory
// type bit is always added regardless of what's passed here).
func WithRootMode(mode uint16) MkfsOption {
	return func(c *mkfsConfig) { c.rootMode = ModeIFDIR | (mode &^ ModeIFMT) }
}

// WithRootOwner sets the root directory's uid/gid.
func WithRootOwner(uid, gid uint32) MkfsOption {
	return func(c *mkfsConfig) { c.rootUID, c.rootGID = uid, gid }
}

// Mkfs creates (or truncates) the file at path, sizes it to hold
// totalBlocks blocks, and writes a fresh, clean LFS volume into it: a
// superblock, an empty inode table except for a populated root directory,
// both bitmaps with the metadata region pre-reserved, and a zeroed
// journal area.
func Mkfs(path string, totalBlocks uint64, opts ...MkfsOption) error {
	cfg := defaultMkfsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.blockSize < MinBlockSize || cfg.blockSize > MaxBlockSize || cfg.blockSize&(cfg.blockSize-1) != 0 {
		return newErr("mkfs", EINVAL, "block size must be a power of two within bounds")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return newErr("mkfs", EIO, err.Error())
	}
	defer f.Close()
	if err := f.Truncate(int64(totalBlocks) * int64(cfg.blockSize)); err != nil {
		return newErr("mkfs", EIO, err.Error())
	}

	dev := newMemDevice(f, cfg.blockSize, totalBlocks)
	log := logrus.WithField("component", "mkfs")

	inodeTableBlocks := InodeTableBlocks(uint64(cfg.totalInodes), cfg.blockSize)
	inodeBitmapStart := 1 + inodeTableBlocks
	inodeBitmapBlocks := blocksFor(uint64(cfg.totalInodes)/8+1, cfg.blockSize)
	blockBitmapStart := inodeBitmapStart + inodeBitmapBlocks
	blockBitmapBlocks := blocksFor(totalBlocks/8+1, cfg.blockSize)
	journalStart := blockBitmapStart + blockBitmapBlocks
	reservedUpTo := journalStart + uint64(cfg.journalBlocks)

	if reservedUpTo+1 >= totalBlocks {
		return newErr("mkfs", ENOSPC, "device too small for the requested layout")
	}

	balloc := newBlockAllocator(uint32(totalBlocks), uint32(reservedUpTo), log)
	ialloc := newInodeAllocator(cfg.totalInodes, log)

	rootIno, generation, err := ialloc.Alloc()
	if err != nil {
		return err
	}
	if rootIno != RootIno {
		return newErr("mkfs", EIO, "inode allocator did not hand out the root inode first")
	}

	rootBlock, err := balloc.Alloc()
	if err != nil {
		return err
	}

	content := encodeDirEntries([]dirEntry{
		{Ino: RootIno, RecLen: dirRecLen(1), NameLen: 1, FileType: FtDir, Name: "."},
		{Ino: RootIno, RecLen: dirRecLen(2), NameLen: 2, FileType: FtDir, Name: ".."},
	})
	blk := make([]byte, cfg.blockSize)
	copy(blk, content)
	if err := dev.WriteBlock(uint64(rootBlock), blk); err != nil {
		return err
	}

	ts := time.Now().Unix()
	rootRec := &Inode{
		Mode:       cfg.rootMode,
		Uid:        cfg.rootUID,
		Gid:        cfg.rootGID,
		Size:       uint64(len(content)),
		Atime:      ts,
		Mtime:      ts,
		Ctime:      ts,
		LinksCount: 2,
		Generation: generation,
	}
	rootRec.Blocks[0] = rootBlock
	if err := writeInodeRawToDevice(dev, RootIno, rootRec); err != nil {
		return err
	}

	sb := &Superblock{
		Magic:        Magic,
		Version:      FormatVersion,
		BlockSize:    cfg.blockSize,
		TotalBlocks:  uint32(totalBlocks),
		FreeBlocks:   balloc.FreeCount(),
		TotalInodes:  cfg.totalInodes,
		FreeInodes:   ialloc.FreeCount(),
		JournalStart: journalStart,
		JournalSize:  cfg.journalBlocks,
		State:        StateClean,
		UUID:         NewUUID(),
	}
	sbData, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	sbBlk := make([]byte, cfg.blockSize)
	copy(sbBlk, sbData)
	if err := dev.WriteBlock(0, sbBlk); err != nil {
		return err
	}

	if err := writeSpanRaw(dev, inodeBitmapStart, ialloc.Bytes()); err != nil {
		return err
	}
	if err := writeSpanRaw(dev, blockBitmapStart, balloc.Bytes()); err != nil {
		return err
	}

	return dev.Flush()
}

// writeInodeRawToDevice writes rec into ino's slot, for use before any
// Volume exists (mkfs only; the mounted path uses Volume.writeInodeRaw).
func writeInodeRawToDevice(dev *blockDevice, ino uint32, rec *Inode) error {
	block, offset := inodeLocation(ino, dev.BlockSize())
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	blk, err := dev.ReadBlock(block)
	if err != nil {
		return err
	}
	copy(blk[offset:offset+InodeSize], data)
	return dev.WriteBlock(block, blk)
}

// writeSpanRaw is Volume.writeSpan's device-only counterpart, for mkfs.
func writeSpanRaw(dev *blockDevice, startBlock uint64, data []byte) error {
	bs := dev.BlockSize()
	for written := uint64(0); written < uint64(len(data)); written += uint64(bs) {
		blk := make([]byte, bs)
		copy(blk, data[written:])
		if err := dev.WriteBlock(startBlock+written/uint64(bs), blk); err != nil {
			return err
		}
	}
	return nil
}
