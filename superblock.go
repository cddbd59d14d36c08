package lfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SuperblockSize is the fixed on-disk size of the superblock record,
// block 0 of every volume (spec §6.1).
const SuperblockSize = 128

const superblockReservedWords = 16 // pads the record out to SuperblockSize

// Superblock is the decoded form of block 0. Field order and widths
// mirror include/lfs_format.h's struct lfs_superblock exactly; see
// MarshalBinary/UnmarshalBinary.
type Superblock struct {
	Magic        uint32
	Version      uint32
	BlockSize    uint32
	TotalBlocks  uint32
	FreeBlocks   uint32
	TotalInodes  uint32
	FreeInodes   uint32
	JournalStart uint64
	JournalSize  uint32
	State        State
	UUID         [16]byte
	Checksum     uint32
}

// MarshalBinary encodes the superblock into its fixed 128-byte,
// little-endian, checksum-correct on-disk form.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(SuperblockSize)

	write := func(v any) {
		binary.Write(buf, binary.LittleEndian, v)
	}
	write(s.Magic)
	write(s.Version)
	write(s.BlockSize)
	write(s.TotalBlocks)
	write(s.FreeBlocks)
	write(s.TotalInodes)
	write(s.FreeInodes)
	write(s.JournalStart)
	write(s.JournalSize)
	write(uint32(s.State))
	buf.Write(s.UUID[:])
	write(uint32(0)) // checksum placeholder, filled below
	write(make([]uint32, superblockReservedWords))

	out := buf.Bytes()
	if len(out) != SuperblockSize {
		return nil, fmt.Errorf("lfs: internal error: superblock encoded to %d bytes, want %d", len(out), SuperblockSize)
	}
	s.Checksum = checksumIEEE(out)
	binary.LittleEndian.PutUint32(out[checksumOffset:], s.Checksum)
	return out, nil
}

// checksumOffset is the byte offset of the Checksum field within the
// encoded record (magic..uuid = 60 bytes).
const checksumOffset = 60

// UnmarshalBinary decodes a 128-byte superblock record, verifying its
// CRC32 against the record with the checksum field zeroed.
func (s *Superblock) UnmarshalBinary(data []byte) error {
	if len(data) < SuperblockSize {
		return newErr("superblock.decode", EINVAL, "short record")
	}
	raw := make([]byte, SuperblockSize)
	copy(raw, data[:SuperblockSize])

	r := bytes.NewReader(raw)
	read := func(v any) { binary.Read(r, binary.LittleEndian, v) }
	read(&s.Magic)
	read(&s.Version)
	read(&s.BlockSize)
	read(&s.TotalBlocks)
	read(&s.FreeBlocks)
	read(&s.TotalInodes)
	read(&s.FreeInodes)
	read(&s.JournalStart)
	read(&s.JournalSize)
	var state uint32
	read(&state)
	s.State = State(state)
	io.ReadFull(r, s.UUID[:])
	read(&s.Checksum)

	zeroed := make([]byte, SuperblockSize)
	copy(zeroed, raw)
	binary.LittleEndian.PutUint32(zeroed[checksumOffset:], 0)
	got := checksumIEEE(zeroed)
	if got != s.Checksum {
		return newErr("superblock.decode", EIO, fmt.Sprintf("checksum mismatch: got %#x want %#x", got, s.Checksum))
	}
	return nil
}

// Validate checks the structural invariants from spec §3: bounds on
// block_size, free<=total counters, and journal placement.
func (s *Superblock) Validate() error {
	if s.Magic != Magic {
		return newErr("superblock.validate", EINVAL, "bad magic")
	}
	if s.Version < FormatVersion {
		return newErr("superblock.validate", EINVAL, "unsupported format version")
	}
	if s.BlockSize < MinBlockSize || s.BlockSize > MaxBlockSize || s.BlockSize&(s.BlockSize-1) != 0 {
		return newErr("superblock.validate", EINVAL, "block_size out of range or not a power of two")
	}
	if s.FreeBlocks > s.TotalBlocks {
		return newErr("superblock.validate", EINVAL, "free_blocks > total_blocks")
	}
	if s.FreeInodes > s.TotalInodes {
		return newErr("superblock.validate", EINVAL, "free_inodes > total_inodes")
	}
	if s.JournalStart+uint64(s.JournalSize) > uint64(s.TotalBlocks) {
		return newErr("superblock.validate", EINVAL, "journal extends past end of device")
	}
	return nil
}

// NewUUID generates a random volume UUID, used by mkfs.
func NewUUID() [16]byte {
	var out [16]byte
	copy(out[:], uuid.New()[:])
	return out
}
