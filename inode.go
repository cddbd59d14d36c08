package lfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// InodeSize is the fixed on-disk size of one inode record (spec §3:
// "fixed 128 bytes nominal").
const InodeSize = 128

const inodeReservedWords = 4

// Inode is the decoded form of one inode-table record. Field order
// mirrors include/lfs_format.h's struct lfs_inode.
type Inode struct {
	Mode       uint16
	Flags      uint16
	Uid        uint32
	Gid        uint32
	Size       uint64
	Atime      int64
	Mtime      int64
	Ctime      int64
	Blocks     [NBlocks]uint32
	LinksCount uint32
	Generation uint32
	Checksum   uint32
}

// InodesPerBlock returns how many fixed-size inode records fit in one
// block of the given size.
func InodesPerBlock(blockSize uint32) uint32 {
	return blockSize / InodeSize
}

// InodeTableBlocks returns the number of blocks the inode table occupies
// for totalInodes inodes of InodeSize bytes each, per spec §6.1.
func InodeTableBlocks(totalInodes uint64, blockSize uint32) uint64 {
	perBlock := uint64(InodesPerBlock(blockSize))
	return (totalInodes + perBlock - 1) / perBlock
}

// inodeLocation returns the (block, offset) pair where inode ino lives,
// per spec §4.3: "the inode table begins at block 1 ... inode i lives in
// block 1 + i/inodes_per_block at offset (i%inodes_per_block)*sizeof(inode)".
func inodeLocation(ino uint32, blockSize uint32) (block uint64, offset uint32) {
	perBlock := InodesPerBlock(blockSize)
	block = 1 + uint64(ino)/uint64(perBlock)
	offset = (ino % perBlock) * InodeSize
	return
}

// MarshalBinary encodes the inode into its fixed InodeSize on-disk form,
// computing the checksum over the record with the checksum field zeroed.
func (ino *Inode) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(InodeSize)
	write := func(v any) { binary.Write(buf, binary.LittleEndian, v) }

	write(ino.Mode)
	write(ino.Flags)
	write(ino.Uid)
	write(ino.Gid)
	write(ino.Size)
	write(ino.Atime)
	write(ino.Mtime)
	write(ino.Ctime)
	write(ino.Blocks)
	write(ino.LinksCount)
	write(ino.Generation)
	write(uint32(0)) // checksum placeholder
	write(make([]uint32, inodeReservedWords))

	out := buf.Bytes()
	if len(out) != InodeSize {
		return nil, fmt.Errorf("lfs: internal error: inode encoded to %d bytes, want %d", len(out), InodeSize)
	}
	ino.Checksum = checksumIEEE(out)
	binary.LittleEndian.PutUint32(out[inodeChecksumOffset:], ino.Checksum)
	return out, nil
}

// inodeChecksumOffset is the byte offset of the Checksum field:
// mode2+flags2+uid4+gid4+size8+atime8+mtime8+ctime8+blocks(14*4=56)+links4+generation4 = 108
const inodeChecksumOffset = 108

// UnmarshalBinary decodes one InodeSize-byte record and verifies its
// checksum.
func (ino *Inode) UnmarshalBinary(data []byte) error {
	if len(data) < InodeSize {
		return newErr("inode.decode", EINVAL, "short record")
	}
	raw := make([]byte, InodeSize)
	copy(raw, data[:InodeSize])

	r := bytes.NewReader(raw)
	read := func(v any) { binary.Read(r, binary.LittleEndian, v) }
	read(&ino.Mode)
	read(&ino.Flags)
	read(&ino.Uid)
	read(&ino.Gid)
	read(&ino.Size)
	read(&ino.Atime)
	read(&ino.Mtime)
	read(&ino.Ctime)
	read(&ino.Blocks)
	read(&ino.LinksCount)
	read(&ino.Generation)
	read(&ino.Checksum)

	zeroed := make([]byte, InodeSize)
	copy(zeroed, raw)
	binary.LittleEndian.PutUint32(zeroed[inodeChecksumOffset:], 0)
	got := checksumIEEE(zeroed)
	if got != ino.Checksum {
		return newErr("inode.decode", EIO, fmt.Sprintf("checksum mismatch: got %#x want %#x", got, ino.Checksum))
	}
	return nil
}

// IsFree reports a record with zero mode, links_count and size, such as
// the record DeleteInode leaves behind (only the generation is kept).
// Used by fsck and replay when cross-checking the bitmap.
func (ino *Inode) IsFree() bool {
	return ino.Mode == 0 && ino.LinksCount == 0 && ino.Size == 0
}
